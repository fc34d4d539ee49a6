// Package elasticsearch is a thin indexing client built on top of
// transport.Transport: it owns nothing the transport doesn't already
// provide (pooling, retry, sniffing), and exists only to shape one
// document into a PerformRequest call.
package elasticsearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/truemilk/estransport/internal/logger"
	"github.com/truemilk/estransport/transport"
)

// Client indexes documents into a single index through a shared Transport.
type Client struct {
	t     *transport.Transport
	index string
	log   zerolog.Logger
}

// NewClient wraps t for indexing into index.
func NewClient(t *transport.Transport, index string) *Client {
	return &Client{t: t, index: index, log: logger.Component("elasticsearch")}
}

// IndexDocument performs a POST <index>/_doc, delegating pooling, retry on
// 502/503/504, and dead-node quarantine to the Transport.
func (c *Client) IndexDocument(ctx context.Context, doc map[string]any) error {
	path := fmt.Sprintf("/%s/_doc", c.index)
	c.log.Debug().Str("index", c.index).Interface("doc", doc).Msg("Indexing document")

	_, err := c.t.PerformRequest(ctx, http.MethodPost, path, url.Values{}, doc, http.Header{})
	if err != nil {
		c.log.Error().Err(err).Str("index", c.index).Msg("Indexing request failed")
		return fmt.Errorf("elasticsearch: index document: %w", err)
	}

	c.log.Info().Str("index", c.index).Msg("Document indexed")
	return nil
}
