package cli

import (
	"fmt"
	"strconv"
	"strings"

	"boardsync/internal/prefs"

	"github.com/spf13/cobra"
)

func renderColumns(cols []prefs.Column) string {
	var b strings.Builder
	for i, c := range cols {
		mark := "x"
		if !c.Visible {
			mark = " "
		}
		label := c.Label
		if label == "" {
			label = "(checkbox)"
		}
		fmt.Fprintf(&b, "%d. [%s] %-10s %s\n", i+1, mark, c.ID, label)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newPrefsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "List view column layout",
	}

	show := func(cmd *cobra.Command, rt *runtime) error {
		cols := rt.app.Prefs().Columns()
		return writeView(cmd, a, cols, func() string { return renderColumns(cols) })
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "columns",
		Short: "Show the list column layout",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			return show(cmd, rt)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <column-id>",
		Short: "Show or hide a list column",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if err := rt.app.Prefs().ToggleVisible(args[0]); err != nil {
				return err
			}
			return show(cmd, rt)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "move <column-id> <delta>",
		Short: "Move a list column left (negative) or right",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid delta %q", args[1])
			}
			if err := rt.app.Prefs().Move(args[0], delta); err != nil {
				return err
			}
			return show(cmd, rt)
		}),
	})
	return cmd
}
