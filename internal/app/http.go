package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meshnode/pkg/api"
	"meshnode/pkg/logger"
	"meshnode/pkg/utils"
)

type serverHandle = *http.Server

// startHTTP mounts the node API plus the operational endpoints and starts
// listening. The returned channel carries a fatal listen error, if any.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "version": a.version})
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !a.st.Ready() {
			utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
			return
		}
		utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"queue_depth": a.queue.Len(),
			"pending":     a.tracker.PendingCount(),
		})
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	rl := api.RateLimit{
		RPS:   a.eff.Config.Security.RateLimit.RPS,
		Burst: a.eff.Config.Security.RateLimit.Burst,
	}
	r.PathPrefix("/v1/").Handler(api.NewHandler(a.proc, a.st, rl))

	a.srv = &http.Server{
		Addr:         a.eff.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listen", "addr", a.eff.Addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutCtx); err != nil {
			logger.Warn("http_shutdown_error", "error", err)
		}
	}()
	return errCh
}
