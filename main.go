package main

import (
	"context"
	"embed"
	_ "embed"
	"errors"
	"flag"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"collab-space/directory"
	"collab-space/handlers/api/docs"
	ws "collab-space/handlers/websocket"
	"collab-space/session"
	"collab-space/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

//go:embed all:frontend
var assets embed.FS

func handleUI() http.HandlerFunc {
	sub, err := fs.Sub(assets, "frontend")
	if err != nil {
		panic(err)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" || path == "" {
			path = "/index.html"
		}

		f, err := sub.Open(strings.TrimPrefix(path, "/"))
		if err != nil {
			// Requests without a file extension are client-side routes;
			// serve index.html and let the frontend router handle them.
			if os.IsNotExist(err) && !strings.Contains(path, ".") {
				path = "/index.html"
				f, err = sub.Open("index.html")
			}
			if err != nil {
				http.NotFound(w, r)
				return
			}
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, "Error reading file", http.StatusInternalServerError)
			return
		}

		contentType := http.DetectContentType(content)
		switch {
		case strings.HasSuffix(path, ".js"):
			contentType = "application/javascript"
		case strings.HasSuffix(path, ".html"):
			contentType = "text/html"
		case strings.HasSuffix(path, ".css"):
			contentType = "text/css"
		case strings.HasSuffix(path, ".svg"):
			contentType = "image/svg+xml"
		}

		w.Header().Set("Content-Type", contentType)
		if _, err := w.Write(content); err != nil {
			logrus.WithError(err).Debug("Failed to write asset response")
		}
	}
}

func setupRouter(dir *directory.Service, syncHandler *ws.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/health", docs.HandleHealth())

	r.Route("/api/docs", func(r chi.Router) {
		r.Get("/", docs.HandleList(dir))
		r.Post("/", docs.HandleCreate())
		r.Delete("/{id}", docs.HandleDelete(dir))
	})

	r.Get("/ws/{documentID}", syncHandler.Handle())

	r.NotFound(handleUI())
	return r
}

func debounceInterval() time.Duration {
	raw := os.Getenv("DEBOUNCE_INTERVAL")
	if raw == "" {
		return session.DefaultDebounce
	}
	interval, err := time.ParseDuration(raw)
	if err != nil || interval <= 0 {
		logrus.WithField("DEBOUNCE_INTERVAL", raw).Warn("Invalid debounce interval, using default")
		return session.DefaultDebounce
	}
	return interval
}

func waitForShutdown(registry *session.Registry, srv *http.Server) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-signalC

	logrus.Info("Shutting down, flushing live documents")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	registry.FlushAll(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Server shutdown was not clean")
	}
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	defaultListen := ":4444"
	if port := os.Getenv("PORT"); port != "" {
		defaultListen = ":" + port
	}

	listenAddress := flag.String("listen", defaultListen, "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	store := stores.GetStore()
	persister := session.NewPersister(store, debounceInterval())
	registry := session.NewRegistry(persister)
	dir := directory.NewService(registry, store)
	syncHandler := ws.NewHandler(registry)

	r := setupRouter(dir, syncHandler)
	srv := &http.Server{Addr: *listenAddress, Handler: r}

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(registry, srv)
}
