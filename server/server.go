package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/grabtube/grabtube/server/archive"
	"github.com/grabtube/grabtube/server/config"
	"github.com/grabtube/grabtube/server/internal/catalog"
	"github.com/grabtube/grabtube/server/internal/events"
	"github.com/grabtube/grabtube/server/internal/manager"
	"github.com/grabtube/grabtube/server/internal/merger"
	"github.com/grabtube/grabtube/server/logging"
	middlewares "github.com/grabtube/grabtube/server/middleware"
	"github.com/grabtube/grabtube/server/notifier"
	"github.com/grabtube/grabtube/server/rest"
	"github.com/grabtube/grabtube/server/status"
	"github.com/grabtube/grabtube/server/updater"
	"github.com/grabtube/grabtube/server/user"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	_ "modernc.org/sqlite"
)

type serverConfig struct {
	mgr  *manager.Manager
	cat  *catalog.Catalog
	hub  *notifier.Hub
	repo *archive.Repository
}

func Run(ctx context.Context) error {
	conf := config.Instance()

	// ---- LOGGING ---------------------------------------------------
	logWriters := []io.Writer{os.Stdout}

	if conf.Logging.EnableFileLogging {
		logger, err := logging.NewRotableLogger(conf.Logging.LogPath)
		if err != nil {
			return err
		}

		go func() {
			for {
				time.Sleep(time.Hour * 24)
				logger.Rotate()
			}
		}()

		logWriters = append(logWriters, logger)
	}

	logger := slog.New(slog.NewTextHandler(io.MultiWriter(logWriters...), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	// ----------------------------------------------------------------

	var (
		fs     = afero.NewOsFs()
		fabric = events.New()
		cat    = catalog.New(conf.Paths.ResolverPath, conf.Downloads.RateLimitKBps, fs)
		ff     = merger.New(conf.Paths.FFmpegPath)
	)

	mgr := manager.New(manager.Config{
		Catalog:     cat,
		Merger:      ff,
		Fs:          fs,
		Fabric:      fabric,
		Concurrency: conf.Downloads.Concurrency,
		OutputDir:   conf.Paths.DownloadPath,
	})

	if err := mgr.SetOutputDirectory(conf.Paths.DownloadPath); err != nil {
		return err
	}

	dbPath := filepath.Join(conf.Paths.LocalDatabasePath, "archive.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, err := archive.NewRepository(db)
	if err != nil {
		return err
	}

	if err := archive.Register(repo, fabric, mgr); err != nil {
		return err
	}

	hub, err := notifier.NewHub(fabric)
	if err != nil {
		return err
	}

	srv := newServer(serverConfig{
		mgr:  mgr,
		cat:  cat,
		hub:  hub,
		repo: repo,
	})

	var (
		network = "tcp"
		address = fmt.Sprintf("%s:%d", conf.Server.Host, conf.Server.Port)
	)

	// support unix sockets
	if strings.HasPrefix(conf.Server.Host, "/") {
		network = "unix"
		address = conf.Server.Host
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		slog.Error("failed to listen", slog.String("err", err.Error()))
		return err
	}

	slog.Info("grabtube started", slog.String("address", address))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newServer(c serverConfig) *http.Server {
	r := chi.NewRouter()

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	r.Use(corsMiddleware.Handler)

	// Authentication routes
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", user.Login)
		r.Get("/logout", user.Logout)
	})

	// Live event feed
	r.With(middlewares.ApplyAuthenticationByConfig).Get("/ws", c.hub.Handler())

	// REST API handlers
	r.Route("/api/v1", rest.ApplyRouter(&rest.ContainerArgs{
		Manager: c.mgr,
		Catalog: c.cat,
	}))

	// Archive routes
	r.Route("/archive", func(r chi.Router) {
		r.Use(middlewares.ApplyAuthenticationByConfig)
		archive.ApplyRouter(c.repo)(r)
	})

	// Runtime status
	r.Route("/status", status.ApplyRouter(c.mgr))

	// Resolver self update
	r.With(middlewares.ApplyAuthenticationByConfig).Post("/updater", func(w http.ResponseWriter, req *http.Request) {
		if err := updater.UpdateResolver(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{Handler: r}
}
