// Package worker bounds ingestion concurrency for the demo's HTTP front
// door with the teacher's channel-based pool shape.
package worker

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/truemilk/estransport/internal/elasticsearch"
	"github.com/truemilk/estransport/internal/logger"
	"github.com/truemilk/estransport/pkg/sanitizer"
)

// Request is one HTTP ingestion job handed to the pool.
type Request struct {
	W    http.ResponseWriter
	R    *http.Request
	Done chan bool
}

// Pool bounds the number of documents indexed concurrently.
type Pool struct {
	requests chan *Request
	es       *elasticsearch.Client
	log      zerolog.Logger
}

// NewPool starts numWorkers goroutines draining the request channel.
func NewPool(numWorkers int) *Pool {
	pool := &Pool{
		requests: make(chan *Request, numWorkers),
		log:      logger.Component("worker_pool"),
	}

	pool.log.Info().Int("workers", numWorkers).Msg("Initializing worker pool")

	for i := 0; i < numWorkers; i++ {
		go pool.worker(i)
	}

	return pool
}

// SetElasticsearchClient wires the indexing client. Workers use the client
// as soon as they receive a request and do not wait for it to be set, so it
// is set before any request is submitted (Server.Start does so before it
// starts serving).
func (p *Pool) SetElasticsearchClient(client *elasticsearch.Client) {
	p.es = client
	p.log.Info().Msg("Elasticsearch client configured for worker pool")
}

// Submit enqueues req and blocks until a worker has processed it.
func (p *Pool) Submit(w http.ResponseWriter, r *http.Request) {
	p.log.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Msg("Submitting request to worker pool")

	done := make(chan bool)
	p.requests <- &Request{W: w, R: r, Done: done}
	<-done
}

func (p *Pool) worker(id int) {
	log := p.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for req := range p.requests {
		log.Debug().Msg("Processing new request")
		p.processRequest(req, log)
	}
}

func (p *Pool) processRequest(req *Request, log zerolog.Logger) {
	defer func() { req.Done <- true }()

	w, r := req.W, req.R
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		log.Warn().Str("method", r.Method).Msg("Invalid HTTP method")
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read request body")
		http.Error(w, "Error reading body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		log.Error().Err(err).Msg("Failed to parse JSON")
		http.Error(w, "Error parsing JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	cleanData := sanitizer.SanitizeDocument(data)
	log.Debug().Interface("clean_data", cleanData).Msg("JSON sanitized")

	if err := p.es.IndexDocument(r.Context(), cleanData); err != nil {
		log.Error().Err(err).Msg("Failed to index document in Elasticsearch")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "warning",
			"message": "request processed but failed to store in elasticsearch",
			"data":    cleanData,
		})
		return
	}

	log.Info().Msg("Request processed successfully")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "success",
		"message": "data indexed",
		"data":    cleanData,
	})
}
