// Package admin serves the blob cache's operational HTTP surface on a
// separate port from the binary protocol: health/ready/live checks,
// Prometheus metrics, and a glob-filtered listing of locally stored blobs.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"
	"github.com/ryanuber/go-glob"
	"github.com/sirupsen/logrus"

	"github.com/jobrun/blobcache/internal/metrics"
	"github.com/jobrun/blobcache/internal/middleware"
	"github.com/jobrun/blobcache/internal/store"
)

// Server is the admin HTTP server: an http.Server plus the storage
// directory it introspects for the /blobs listing.
type Server struct {
	httpServer *http.Server
	log        *logrus.Entry
}

// New builds an admin Server bound to addr, backed by st for the /blobs
// listing and m for the /metrics endpoint.
func New(addr string, st *store.FileStore, m *metrics.Metrics, log *logrus.Logger) *Server {
	entry := log.WithField("component", "admin")

	r := mux.NewRouter()
	r.Use(middleware.RecoveryMiddleware(log))
	r.Use(middleware.LoggingMiddleware(log))

	r.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", metrics.ReadinessHandler(nil)).Methods(http.MethodGet)
	r.HandleFunc("/live", metrics.LivenessHandler()).Methods(http.MethodGet)
	r.HandleFunc("/blobs", listBlobsHandler(st)).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: r},
		log:        entry,
	}
}

// blobListing is the JSON shape returned by /blobs.
type blobListing struct {
	Keys []string `json:"keys"`
}

// listBlobsHandler lists the hex keys of locally stored blobs, optionally
// filtered by a shell glob pattern given in the "pattern" query parameter.
func listBlobsHandler(st *store.FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pattern := r.URL.Query().Get("pattern")

		entries, err := os.ReadDir(st.Dir())
		if err != nil {
			http.Error(w, "failed to list storage directory", http.StatusInternalServerError)
			return
		}

		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Name()
			if !strings.HasPrefix(name, "blob_") {
				continue
			}
			key := strings.TrimPrefix(name, "blob_")
			if pattern != "" && !glob.Glob(pattern, key) {
				continue
			}
			keys = append(keys, key)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(blobListing{Keys: keys})
	}
}

// Start begins serving in the background. Errors after a clean Shutdown are
// swallowed; any other listen error is logged.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("admin server stopped unexpectedly")
		}
	}()
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
