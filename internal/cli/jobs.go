package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	coredatabase "github.com/m3rciful/issuebot/core/database"
	"github.com/m3rciful/issuebot/core/logger"
	"github.com/m3rciful/issuebot/internal/app"
)

type configLoader func() (*app.Config, error)

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			if err := coredatabase.RunMigrations(cfg.Database); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newCloseChatCmd(load configLoader) *cobra.Command {
	var issueID, userID int64
	cmd := &cobra.Command{
		Use:   "close-chat",
		Short: "Close the Telegram chat linked to an issue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if issueID <= 0 {
				return fmt.Errorf("--issue is required")
			}
			return withApp(load, func(a *app.App) error {
				svc, err := a.Groups()
				if err != nil {
					return err
				}
				if err := svc.CloseChat(cmd.Context(), issueID, userID); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "chat of issue #%d closed\n", issueID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&issueID, "issue", 0, "Issue id")
	cmd.Flags().Int64Var(&userID, "user", 0, "Tracker user closing the chat (0 closes anonymously)")
	return cmd
}

func newKickLockedCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "kick-locked",
		Short: "Remove locked tracker users from issue chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(a *app.App) error {
				svc, err := a.Groups()
				if err != nil {
					return err
				}
				n, err := svc.KickLocked(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %d members\n", n)
				return nil
			})
		},
	}
}

// withApp bootstraps the application for a one-off job and tears it down afterwards.
func withApp(load configLoader, fn func(*app.App) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	a, err := app.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
		_ = logger.Shutdown()
	}()
	return fn(a)
}
