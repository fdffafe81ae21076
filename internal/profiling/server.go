package profiling

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter returns the ops router: /healthz, /runs/active and the pprof endpoints
// under /debug. active reports the number of in-flight screening runs.
func NewRouter(active func() int64) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/runs/active", func(w http.ResponseWriter, req *http.Request) {
		var n int64
		if active != nil {
			n = active()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"active_runs":` + strconv.FormatInt(n, 10) + `}`))
	})
	r.Mount("/debug", middleware.Profiler())
	return r
}

// NewServer wraps the ops router in an http.Server listening on :port
func NewServer(port string, active func() int64) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           NewRouter(active),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
