package progress

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NewHandler wires the metrics and health endpoints on a single mux.
func NewHandler(metrics *Metrics) http.Handler {
	router := chi.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return router
}

// Serve runs the progress endpoint until the context is canceled. Serving is
// best-effort: a listen failure is logged, never fatal to the run.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("progress endpoint starting", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("progress endpoint failed", zap.Error(err))
	}
}
