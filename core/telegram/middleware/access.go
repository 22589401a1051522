package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions configures AdminOnlyMiddleware. A zero AdminID disables the check.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware passes only updates sent by the configured admin.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.AdminID == 0 {
				return next(c)
			}
			if u := c.Sender(); u != nil && u.ID == opts.AdminID {
				return next(c)
			}
			if opts.OnReject == nil {
				return nil
			}
			return opts.OnReject(c)
		}
	}
}
