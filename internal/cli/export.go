package cli

import (
	"boardsync/internal/publish"

	"github.com/spf13/cobra"
)

func newExportCmd(a *App) *cobra.Command {
	var pflag, to string
	var overwrite, asHTML bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a project and its tasks as markdown files",
		RunE: withSession(a, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pid, err := rt.projectID(pflag)
			if err != nil {
				return err
			}
			res, err := publish.WriteProject(rt.app.Snapshot(), pid, to, publish.WriteOptions{Overwrite: overwrite, HTML: asHTML})
			if err != nil {
				return err
			}
			return writeOut(cmd, a, res)
		}),
	}
	cmd.Flags().StringVar(&pflag, "project", "", "Project id (default: current)")
	cmd.Flags().StringVar(&to, "to", "", "Output directory")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files")
	cmd.Flags().BoolVar(&asHTML, "html", false, "Write HTML pages instead of markdown")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
