package http

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/curanet/fhird/internal/service/fhir/ports"
)

// Loopback routes synthesized sub-requests through an http.Handler in
// process, capturing status, headers and body without a network round trip.
type Loopback struct {
	handler http.Handler
}

func NewLoopback(h http.Handler) *Loopback {
	return &Loopback{handler: h}
}

func (l *Loopback) Dispatch(ctx context.Context, req ports.SubRequest) (ports.SubResponse, error) {
	// The caller's context may still carry the route context of the outer
	// request that triggered this dispatch; chi would resume matching from it
	// and misroute the sub-request. Clear it so the mux matches from scratch.
	ctx = context.WithValue(ctx, chi.RouteCtxKey, nil)

	target := url.URL{Path: req.Path, RawQuery: req.Query.Encode()}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return ports.SubResponse{}, err
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}

	rec := &capture{header: http.Header{}, status: http.StatusOK}
	l.handler.ServeHTTP(rec, httpReq)

	return ports.SubResponse{
		Status: rec.status,
		Header: rec.header,
		Body:   rec.body.Bytes(),
	}, nil
}

// capture is a minimal http.ResponseWriter recording the handler's output.
type capture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (c *capture) Header() http.Header {
	return c.header
}

func (c *capture) WriteHeader(status int) {
	c.status = status
}

func (c *capture) Write(p []byte) (int, error) {
	return c.body.Write(p)
}
