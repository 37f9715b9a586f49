package cli

import (
	"boardsync/internal/tui"

	"github.com/spf13/cobra"
)

func newTUICmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive client",
		RunE: func(cmd *cobra.Command, args []string) error {
			n := &tui.Notifier{}
			rt, err := a.session(cmd.Context(), n)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer rt.Close()
			if err := tui.Run(cmd.Context(), rt.app, n); err != nil {
				return writeErr(cmd, err)
			}
			rt.remember()
			return nil
		},
	}
}
