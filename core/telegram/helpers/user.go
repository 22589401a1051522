package helpers

import "context"

// UserSource resolves Telegram users to the application's own user model.
type UserSource[T any] interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (T, error)
}

// CurrentUser looks up the sender in src. A nil source yields the zero value.
func CurrentUser[T any](ctx context.Context, src UserSource[T], telegramID int64) (T, error) {
	if src == nil {
		var zero T
		return zero, nil
	}
	return src.GetUserByTelegramID(ctx, telegramID)
}
