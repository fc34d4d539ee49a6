// Package handler is the demo's single-route HTTP front end: it accepts
// POSTed JSON documents and hands them to the worker pool for indexing.
package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/truemilk/estransport/internal/config"
	"github.com/truemilk/estransport/internal/elasticsearch"
	"github.com/truemilk/estransport/internal/logger"
	"github.com/truemilk/estransport/internal/worker"
	"github.com/truemilk/estransport/transport"
)

// Server is the demo's ingestion HTTP server.
type Server struct {
	cfg        *config.Config
	workerPool *worker.Pool
	log        zerolog.Logger
}

// NewServer builds a Server over pool.
func NewServer(cfg *config.Config, pool *worker.Pool) *Server {
	return &Server{cfg: cfg, workerPool: pool, log: logger.Component("server")}
}

// Start wires an indexing client from t and serves until ListenAndServe
// returns.
func (s *Server) Start(t *transport.Transport) error {
	s.log.Info().Str("index", s.cfg.Index).Msg("Initializing elasticsearch client")
	s.workerPool.SetElasticsearchClient(elasticsearch.NewClient(t, s.cfg.Index))

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.log.Info().Str("port", s.cfg.Port).Msg("Starting HTTP server")
	if err := http.ListenAndServe(":"+s.cfg.Port, mux); err != nil {
		s.log.Error().Err(err).Str("port", s.cfg.Port).Msg("Failed to start HTTP server")
		return err
	}
	return nil
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	s.log.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Msg("Handling incoming request")

	s.workerPool.Submit(w, r)
}
