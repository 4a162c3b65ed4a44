// Package httpapi exposes the archive over HTTP: the corpus read path, chat
// summaries, the bot relay endpoints and the static UI.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nkuznetsov/tgarchive/internal/platform/observability"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	maxUploadBytes    = 50 << 20
)

type Server struct {
	srv    *http.Server
	logger *zerolog.Logger
}

type Config struct {
	Addr      string
	StaticDir string
}

func NewServer(cfg Config, h *Handlers, logger *zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestMetrics)
	r.Use(middleware.Recoverer)

	r.Get("/messages", h.Messages)

	r.Route("/api", func(r chi.Router) {
		r.Get("/get-all-chats", h.Chats)
		r.Post("/set-reaction", h.SetReaction)
		r.Get("/stats", h.Stats)
		r.Get("/file-url", h.FileURL)
		r.Post("/send-message", h.SendMessage)
		r.Post("/send-photo", h.sendMedia("photo"))
		r.Post("/send-video", h.sendMedia("video"))
		r.Post("/send-audio", h.sendMedia("audio"))
		r.Post("/send-voice", h.sendMedia("voice"))
		r.Post("/send-document", h.sendMedia("document"))
	})

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger,
	}
}

// Handler exposes the assembled router.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("http api listening")

		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.srv.Shutdown(shutdownCtx)
}

// requestMetrics counts requests per route pattern and status.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "static"
		}

		observability.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
	})
}
