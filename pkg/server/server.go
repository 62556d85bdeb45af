// Package server exposes session metadata and channel samples over HTTP.
//
//	GET /Session/{sessionId}
//	GET /Session/data/{sessionId}/{lap}/{channel}
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mpapenbr/lapsync/log"
	"github.com/mpapenbr/lapsync/pkg/fixture"
	"github.com/mpapenbr/lapsync/pkg/model"
)

// Backend provides the served data. fixture.Store is the default
// implementation.
type Backend interface {
	Session(ctx context.Context, id string) (*model.Session, error)
	Channel(ctx context.Context, id string, lap int, channel string) (
		[]model.ChannelSample, error)
}

type Server struct {
	backend Backend
	l       *log.Logger
	router  *mux.Router
}

type Option func(*Server)

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

func New(backend Backend, opts ...Option) *Server {
	s := &Server{
		backend: backend,
		l:       log.Default().Named("server"),
		router:  mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/Session/{sessionId}", s.getSession).
		Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/Session/data/{sessionId}/{lap}/{channel}", s.getChannel).
		Methods(http.MethodGet, http.MethodHead)
	return s
}

// Handler returns the instrumented handler including CORS handling.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(newCORS().Handler(s.router), "lapsync.server")
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.l.Debug("request",
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Duration("duration", time.Since(start)))
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.backend.Session(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, sess)
}

func (s *Server) getChannel(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	lap, err := strconv.Atoi(vars["lap"])
	if err != nil {
		http.Error(w, "invalid lap", http.StatusBadRequest)
		return
	}
	samples, err := s.backend.Channel(r.Context(),
		vars["sessionId"], lap, vars["channel"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if samples == nil {
		samples = []model.ChannelSample{}
	}
	s.writeJSON(w, samples)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, fixture.ErrNotFound) {
		s.l.Debug("not found", log.String("path", r.URL.Path), log.ErrorField(err))
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	s.l.Error("request failed", log.String("path", r.URL.Path), log.ErrorField(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError),
		http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.Warn("could not write response", log.ErrorField(err))
	}
}

func newCORS() *cors.Cors {
	// The dashboard is served from a different origin in development.
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			"Accept",
			"Accept-Encoding",
			"Content-Encoding",
		},
		MaxAge: 7200,
	})
}
