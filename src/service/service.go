package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mosaicnetworks/graphshare/src/graph"
	"github.com/mosaicnetworks/graphshare/src/guest"
	"github.com/mosaicnetworks/graphshare/src/host"
	"github.com/mosaicnetworks/graphshare/src/protocol"
	"github.com/mosaicnetworks/graphshare/src/version"
	"github.com/sirupsen/logrus"
)

// GraphReader is the graph exposed by the service: the canonical graph of a
// host, or the mirror of a guest.
type GraphReader interface {
	State() graph.State
}

// HostInfo is implemented by host.Host.
type HostInfo interface {
	Stats() host.Stats
}

// GuestInfo is implemented by guest.Guest.
type GuestInfo interface {
	Stats() guest.Stats
	FetchFile(ctx context.Context, path string) (*guest.File, error)
}

// Service exposes the state of a graphshare peer over HTTP.
type Service struct {
	bindAddress string
	graph       GraphReader
	host        HostInfo
	guest       GuestInfo
	router      chi.Router
	server      *http.Server
	started     time.Time
	logger      *logrus.Entry
}

// NewService creates a Service. Either h or g may be nil, depending on the
// role of the peer.
func NewService(bindAddress string,
	graph GraphReader,
	h HostInfo,
	g GuestInfo,
	logger *logrus.Entry) *Service {

	s := &Service{
		bindAddress: bindAddress,
		graph:       graph,
		host:        h,
		guest:       g,
		started:     time.Now(),
		logger:      logger.WithField("prefix", "service"),
	}

	s.routes()

	s.server = &http.Server{
		Addr:    bindAddress,
		Handler: s,
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Service) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/stats", s.GetStats)
	r.Get("/graph", s.GetGraph)
	r.Get("/peers", s.GetPeers)
	r.Get("/files/*", s.GetFile)

	s.router = r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// Serve listens on the bind address and serves the API until Shutdown is
// called. This is a blocking call.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving graphshare API")

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// GetStats returns the statistics of the host and guest roles of the peer.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"version": version.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}

	if s.graph != nil {
		state := s.graph.State()
		stats["entities"] = len(state.Entities)
	}

	if s.host != nil {
		stats["host"] = s.host.Stats()
	}

	if s.guest != nil {
		stats["guest"] = s.guest.Stats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetGraph returns the sanitized graph.
func (s *Service) GetGraph(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		writeError(w, http.StatusNotFound, "no graph")
		return
	}

	state := s.graph.State()

	entities := make(map[string]graph.Entity, len(state.Entities))
	for id, e := range state.Entities {
		entities[id] = e.Sanitize()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entities":          entities,
		"defaultVisibility": state.DefaultVisibility,
		"sharedMode":        state.SharedMode,
	})
}

// GetPeers returns the guests of a host, or the host of a guest.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	var hostStats host.Stats
	if s.host != nil {
		hostStats = s.host.Stats()
	}

	switch {
	case hostStats.Hosting:
		writeJSON(w, http.StatusOK, hostStats.Peers)
	case s.guest != nil:
		stats := s.guest.Stats()
		peers := []map[string]string{}
		if stats.HostID != "" {
			peers = append(peers, map[string]string{
				"remote_id": stats.HostID,
				"state":     stats.State,
			})
		}
		writeJSON(w, http.StatusOK, peers)
	default:
		writeJSON(w, http.StatusOK, []interface{}{})
	}
}

// GetFile fetches an asset from the host through the guest.
func (s *Service) GetFile(w http.ResponseWriter, r *http.Request) {
	if s.guest == nil || s.hosting() {
		writeError(w, http.StatusNotFound, "not a guest")
		return
	}

	p := strings.TrimPrefix(chi.URLParam(r, "*"), "/")

	f, err := s.guest.FetchFile(r.Context(), p)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, protocol.ErrFileNotFound):
			status = http.StatusNotFound
		case errors.Is(err, protocol.ErrNotConnected):
			status = http.StatusServiceUnavailable
		case errors.Is(err, protocol.ErrRequestTimeout):
			status = http.StatusGatewayTimeout
		default:
			s.logger.WithError(err).WithField("path", p).Error("Fetching file")
		}
		writeError(w, status, err.Error())
		return
	}

	if f.MIME != "" {
		w.Header().Set("Content-Type", f.MIME)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}

// hosting reports whether the peer is sharing its own graph. A hosting peer
// has no host to fetch files from.
func (s *Service) hosting() bool {
	return s.host != nil && s.host.Stats().Hosting
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
