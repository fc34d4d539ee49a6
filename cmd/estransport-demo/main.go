// Command estransport-demo exercises the library end to end: it builds a
// Transport from the environment, runs a cluster-info and a sniff
// demonstration request, and then — if PORT is set — starts a small HTTP
// front door that indexes POSTed JSON documents through the same Transport.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"runtime"

	"github.com/google/uuid"

	"github.com/truemilk/estransport/internal/config"
	"github.com/truemilk/estransport/internal/handler"
	"github.com/truemilk/estransport/internal/logger"
	"github.com/truemilk/estransport/internal/metrics"
	"github.com/truemilk/estransport/internal/worker"
	"github.com/truemilk/estransport/transport"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.Component("main")

	runID := uuid.NewString()
	opts := cfg.Options()
	if cfg.OpaqueID == "" {
		opts = append(opts, transport.WithOpaqueID(runID))
	}
	opts = append(opts, transport.WithMetricsCollector(metrics.New(prometheus.DefaultRegisterer)))

	t, err := transport.New(cfg.HostsArg(), opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build transport")
	}
	defer t.Close()

	ctx := context.Background()

	info, err := t.PerformRequest(ctx, http.MethodGet, "/", url.Values{}, nil, http.Header{})
	if err != nil {
		log.Error().Err(err).Msg("Cluster info request failed")
	} else {
		log.Info().Interface("cluster_info", info).Msg("Cluster info")
	}

	nodes, err := t.PerformRequest(ctx, http.MethodGet, "/_nodes/_all/http", url.Values{}, nil, http.Header{})
	if err != nil {
		log.Error().Err(err).Msg("Sniff demonstration request failed")
	} else {
		log.Info().Interface("nodes", nodes).Msg("Discovered nodes")
	}

	if cfg.Port == "" {
		log.Info().Msg("PORT not set, skipping ingestion server")
		return
	}

	numWorkers := runtime.NumCPU() * 2
	pool := worker.NewPool(numWorkers)
	server := handler.NewServer(cfg, pool)
	if err := server.Start(t); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
}
