package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/autom8ter/masedb"
	"github.com/autom8ter/masedb/embedded"
	"github.com/autom8ter/masedb/transport/rest"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		provider    string
		storagePath string
		addr        string
		apiKeys     []string
		logLevel    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the MaseDB document api from an embedded store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := masedb.NewLogger(logLevel, map[string]any{"component": "server"})
			if err != nil {
				return err
			}
			store, err := embedded.Open(provider, map[string]any{"storage_path": storagePath}, embedded.WithLogger(logger))
			if err != nil {
				return err
			}
			defer store.Close()
			srv := &http.Server{
				Addr:              addr,
				Handler:           rest.Handler(store, rest.WithAPIKeys(apiKeys...), rest.WithServerLogger(logger)),
				ReadHeaderTimeout: 10 * time.Second,
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			go func() {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				srv.Shutdown(shutdown)
			}()
			logger.Info(ctx, "starting http server", map[string]any{"addr": addr})
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "badger", "embedded key value provider")
	cmd.Flags().StringVar(&storagePath, "storage-path", "", "embedded storage path (empty for in-memory)")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringSliceVar(&apiKeys, "api-key", nil, "accepted api keys (any key is accepted when empty)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}
