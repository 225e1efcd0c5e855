package runtime

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/curanet/fhird/internal/service/config"
)

// NewHTTPServer wraps the API router with the edge middleware stack. The
// bundle engine's loopback dispatches to the inner router directly, so
// timeouts and request logging apply once per client request, not once per
// sub-operation.
func NewHTTPServer(cfg config.Config, api http.Handler, logger *zap.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Mount("/", api)

	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
