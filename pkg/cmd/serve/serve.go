package serve

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/lapsync/log"
	"github.com/mpapenbr/lapsync/pkg/cmd/util"
	"github.com/mpapenbr/lapsync/pkg/config"
	"github.com/mpapenbr/lapsync/pkg/fixture"
	"github.com/mpapenbr/lapsync/pkg/server"
)

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serves recorded sessions from a fixture directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&config.ServerAddr,
		"addr",
		"a",
		"localhost:8090",
		"listen address of the telemetry API")
	cmd.Flags().StringVar(&config.DataDir,
		"data-dir",
		"./data",
		"directory containing the <sessionId>.yaml fixture files")
	cmd.Flags().StringVar(&config.CacheExpiration,
		"cache-expiration",
		"5m",
		"loaded sessions are read again after this duration")
	return cmd
}

func startServer(ctx context.Context) error {
	if _, err := util.SetupLogger(); err != nil {
		return err
	}
	log.Debug("Config:",
		log.String("addr", config.ServerAddr),
		log.String("dataDir", config.DataDir),
		log.String("cacheExpiration", config.CacheExpiration),
	)
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if tel := util.SetupTelemetry(ctx); tel != nil {
		defer tel.Shutdown()
	}

	store, err := fixture.NewStore(config.DataDir,
		fixture.WithExpiration(
			util.ParseDuration("cache-expiration", config.CacheExpiration, 5*time.Minute)))
	if err != nil {
		log.Error("fixture store could not be created", log.ErrorField(err))
		return err
	}
	go func() {
		if err := store.Watch(ctx); err != nil {
			log.Warn("fixtures are not watched, changes need a restart", log.ErrorField(err))
		}
	}()

	srv := &http.Server{
		Addr:              config.ServerAddr,
		Handler:           server.New(store).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", log.String("addr", config.ServerAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server could not be started", log.ErrorField(err))
			return err
		}
	case <-ctx.Done():
		log.Debug("Got signal")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", log.ErrorField(err))
	}
	log.Info("Server terminated")
	return nil
}
