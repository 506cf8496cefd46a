package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/banshee-data/missionmap/internal/httputil"
	"github.com/banshee-data/missionmap/internal/mapio"
	"github.com/banshee-data/missionmap/internal/missionmap"
	"github.com/banshee-data/missionmap/internal/security"
	"github.com/banshee-data/missionmap/internal/serialmux"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

// LoadRequest names a map raster and optional sidecar, relative to the data
// directory.
type LoadRequest struct {
	MapPath  string `json:"map_path"`
	MetaPath string `json:"meta_path,omitempty"`
}

// PoseRequest is one pose posted to /session/pose.
type PoseRequest struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Theta float64  `json:"theta"`
}

// PoseResponse reports whether the pose was recorded.
type PoseResponse struct {
	Recorded bool             `json:"recorded"`
	State    missionmap.State `json:"state"`
}

// SessionView is the JSON form of the session returned by most session
// endpoints.
type SessionView struct {
	ID        string                  `json:"id,omitempty"`
	State     missionmap.State        `json:"state"`
	Metadata  *missionmap.MapMetadata `json:"metadata,omitempty"`
	Stats     *missionmap.Stats       `json:"stats,omitempty"`
	StartedAt *time.Time              `json:"started_at,omitempty"`
	StoppedAt *time.Time              `json:"stopped_at,omitempty"`
}

// PathView is the recorded path.
type PathView struct {
	ID    string            `json:"id"`
	Cells []missionmap.Cell `json:"cells"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) view() SessionView {
	snap, err := s.session.Snapshot()
	if err != nil {
		return SessionView{State: s.session.State()}
	}
	v := SessionView{
		ID:       snap.ID,
		State:    snap.State,
		Metadata: &snap.Metadata,
		Stats:    &snap.Stats,
	}
	if !snap.StartedAt.IsZero() {
		v.StartedAt = &snap.StartedAt
	}
	if !snap.StoppedAt.IsZero() {
		v.StoppedAt = &snap.StoppedAt
	}
	return v
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.view())
}

func (s *Server) loadMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req LoadRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	mapPath, err := security.ResolveWithin(s.dataDir, req.MapPath)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("map_path: %v", err))
		return
	}
	metaPath := ""
	if req.MetaPath != "" {
		if metaPath, err = security.ResolveWithin(s.dataDir, req.MetaPath); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("meta_path: %v", err))
			return
		}
	}

	base, meta, err := mapio.Load(s.fsys, mapPath, metaPath)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := s.session.Load(base, meta); err != nil {
		httputil.WriteError(w, err)
		return
	}
	s.logf("loaded map %s", mapPath)
	httputil.WriteJSONOK(w, s.view())
}

// control adapts a session transition to a POST endpoint.
func (s *Server) control(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		if err := fn(); err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSONOK(w, s.view())
	}
}

func (s *Server) postPose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req PoseRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.X == nil || req.Y == nil {
		httputil.BadRequest(w, "x and y are required")
		return
	}
	pose := serialmux.Pose{X: *req.X, Y: *req.Y, Theta: req.Theta}
	if !finite(pose.X, pose.Y, pose.Theta) {
		httputil.BadRequest(w, "pose must be finite")
		return
	}
	if s.session.State() == missionmap.StateUnloaded {
		httputil.WriteError(w, fmt.Errorf("cannot accept pose: %w: no map loaded", missionmap.ErrPrecondition))
		return
	}

	recorded := s.session.UpdatePose(pose.X, pose.Y, pose.Theta)
	if s.onPose != nil {
		err := s.onPose(serialmux.PoseEvent{
			SessionID:  s.session.ID(),
			Pose:       pose,
			Recorded:   recorded,
			ReceivedAt: s.clock.Now(),
		})
		if err != nil {
			s.logf("failed to log pose: %v", err)
		}
	}
	httputil.WriteJSONOK(w, PoseResponse{Recorded: recorded, State: s.session.State()})
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s *Server) showPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	path, err := s.session.Path()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if path == nil {
		path = []missionmap.Cell{}
	}
	httputil.WriteJSONOK(w, PathView{ID: s.session.ID(), Cells: path})
}

// errMissingStore is returned by report endpoints on a server built
// without a store.
var errMissingStore = errors.New("report store not configured")
