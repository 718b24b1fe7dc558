package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"handbook/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, c, err := newChatService(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		h := svc.Health(ctx)
		log.Info("dependencies", "status", h.Status(), "embedder", h.Embedder, "index", h.Index, "generator", h.Generator)

		port := cfg.Server.Port
		if servePort > 0 {
			port = servePort
		}
		srv := server.New(server.Config{
			Port:           port,
			Mode:           cfg.Server.Mode,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: secs(cfg.Server.RequestTimeoutSecs),
		}, svc, log)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
