package cli

import (
	"os/signal"
	"syscall"

	"boardsync/internal/relay"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *App) *cobra.Command {
	var addr string
	var origins []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local store to remote clients over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Remote != "" {
				return writeErr(cmd, errRemoteServe)
			}
			if addr == "" {
				addr = a.cfg.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			docs, local, err := a.openLocal(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer docs.Close()

			srv := relay.NewServer(docs, local, relay.ServerOptions{
				Logger:         a.log,
				AllowedOrigins: origins,
			})
			a.log.Info("relay listening", zap.String("addr", addr), zap.String("db", a.cfg.DBPath))
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: addr from config)")
	cmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "Allowed browser origins for CORS (repeatable)")
	return cmd
}
