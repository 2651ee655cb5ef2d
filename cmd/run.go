package cmd

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tgdrive/filebox/internal/cache"
	"github.com/tgdrive/filebox/internal/chizap"
	"github.com/tgdrive/filebox/internal/config"
	"github.com/tgdrive/filebox/internal/logging"
	"github.com/tgdrive/filebox/internal/mailer"
	"github.com/tgdrive/filebox/internal/middleware"
	"github.com/tgdrive/filebox/internal/storage"
	"github.com/tgdrive/filebox/pkg/controller"
	"github.com/tgdrive/filebox/pkg/cron"
	"github.com/tgdrive/filebox/pkg/services"
	"github.com/tgdrive/filebox/pkg/store"
)

func NewRun() *cobra.Command {
	var cfg config.ServerCmdConfig
	loader := config.NewConfigLoader()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start Filebox Server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplication(cmd.Context(), &cfg)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loader.Load(cmd, &cfg); err != nil {
				return err
			}
			return loader.Validate()
		},
	}
	if err := loader.RegisterFlags(cmd.Flags(), "", cfg, false); err != nil {
		panic(err)
	}
	return cmd
}

func setupLogging(c *config.LoggingConfig) *zap.Logger {
	logging.SetConfig(&logging.Config{
		Level:    logging.ParseLevel(c.Level),
		FilePath: c.File,
	})
	return logging.DefaultLogger()
}

func runApplication(ctx context.Context, conf *config.ServerCmdConfig) error {
	lg := setupLogging(&conf.Log)
	defer lg.Sync()
	ctx = logging.WithLogger(ctx, lg)

	st, err := store.Open(ctx, &conf.DB, lg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	objects, err := storage.NewObjectStore(ctx, &conf.Storage, conf.Server.PublicURL)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}
	defer objects.Close()

	cacher := cache.NewCache(&conf.Cache)
	defer cacher.Close()

	srv := services.New(services.Deps{
		Store:   st,
		Objects: objects,
		Cache:   cacher,
		Mailer:  mailer.New(mailer.NewTransport(&conf.Mail, lg)),
		Config:  conf,
	})

	scheduler := cron.NewScheduler()
	if err := cron.StartCronJobs(ctx, scheduler, srv.Sweep, &conf.CronJobs); err != nil {
		return err
	}
	defer scheduler.Stop()

	httpSrv := setupServer(conf, srv, objects, lg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Sugar().Infof("Server started at http://localhost:%d", conf.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("Shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.Server.GracefulShutdown)
		defer shutdownCancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			lg.Error("server shutdown failed", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	lg.Info("Server stopped")
	return err
}

func setupServer(cfg *config.ServerCmdConfig, srv *services.Services, objects storage.ObjectStore, lg *zap.Logger) *http.Server {
	opener, _ := objects.(storage.Opener)
	ctrl := controller.New(srv, cfg, opener, nil)

	mux := chi.NewRouter()

	mux.Use(chimiddleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH", "HEAD"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	mux.Use(chimiddleware.RealIP)
	mux.Use(middleware.InjectLogger(lg))
	mux.Use(chizap.ChizapWithConfig(lg, &chizap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPathRegexps: []*regexp.Regexp{
			regexp.MustCompile(`^/api/v1/health$`),
			regexp.MustCompile(`^/blobs/.*`),
		},
	}))
	mux.Mount("/", ctrl.Router())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
