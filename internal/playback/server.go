package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/scanreplay/internal/scan"
	"github.com/banshee-data/scanreplay/internal/scanlog"
	"github.com/banshee-data/scanreplay/internal/telemetry"
)

// Server exposes a session over HTTP for viewers.
type Server struct {
	session *Session
	store   *telemetry.Store
}

func NewServer(session *Session, store *telemetry.Store) *Server {
	return &Server{session: session, store: store}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/frames/", s.showFrame)
	mux.HandleFunc("/api/timings", s.showTimings)
	mux.HandleFunc("/api/reset", s.resetSession)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type statusAPI struct {
	SessionID    string `json:"session_id"`
	NumFrames    int    `json:"num_frames"`
	NumUnits     int    `json:"num_units"`
	CachedFrames int    `json:"cached_frames"`
	Frontier     int    `json:"frontier"`
	Current      int    `json:"current"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status := statusAPI{
		SessionID:    s.session.ID,
		NumFrames:    s.session.NumFrames(),
		NumUnits:     s.session.NumUnits(),
		CachedFrames: s.session.CachedFrames(),
		Frontier:     s.session.Frontier(),
		Current:      s.session.Current(),
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}

// frameAPI controls the wire shape of a frame; the raw point buffer is
// only included when the client asks for it.
type frameAPI struct {
	Index        int                 `json:"index"`
	Timestamp    int64               `json:"timestamp_ns"`
	Points       int                 `json:"points"`
	Pose         *scanlog.Pose       `json:"pose,omitempty"`
	Detections   []scanlog.Detection `json:"detections,omitempty"`
	DecodeNanos  int64               `json:"decode_ns"`
	ConvertNanos int64               `json:"convert_ns"`
	Data         []float32           `json:"data,omitempty"`
	Stride       int                 `json:"stride,omitempty"`
}

func frameToAPI(f *Frame, includePoints bool) frameAPI {
	api := frameAPI{
		Index:        f.Index,
		Timestamp:    f.Timestamp,
		Points:       f.Cloud.Count,
		Pose:         f.Pose,
		Detections:   f.Detections,
		DecodeNanos:  f.DecodeNanos,
		ConvertNanos: f.ConvertNanos,
	}
	if includePoints {
		api.Data = f.Cloud.Data
		api.Stride = scan.PointStride
	}
	return api
}

func (s *Server) showFrame(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/api/frames/")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 || index >= s.session.NumFrames() {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid frame index %q", raw))
		return
	}

	f := s.session.Frame(index)
	if f == nil {
		// Not decoded yet; the viewer polls until the prefetcher catches up.
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Frame %d not cached", index))
		return
	}

	includePoints := r.URL.Query().Get("points") == "1"
	if err := json.NewEncoder(w).Encode(frameToAPI(f, includePoints)); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write frame")
		return
	}
}

func (s *Server) showTimings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.store == nil {
		s.writeJSONError(w, http.StatusNotFound, "Telemetry not enabled")
		return
	}

	timings, err := s.store.UnitTimings(s.session.ID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve timings: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(timings); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write timings")
		return
	}
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.session.Reset()
	// Detached from the request context so prefetch survives the response.
	s.session.StartPrefetch(context.Background())
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}
