package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/missionmap/internal/db"
	"github.com/banshee-data/missionmap/internal/export"
	"github.com/banshee-data/missionmap/internal/httputil"
	"github.com/banshee-data/missionmap/internal/security"
)

// ExportRequest optionally names the export directory.
type ExportRequest struct {
	Label string `json:"label,omitempty"`
}

// ExportResponse is the stored report of a finished export.
type ExportResponse struct {
	ID     int64         `json:"id"`
	Report export.Report `json:"report"`
}

// maxReports is the number of reports /reports returns by default.
const maxReports = 100

func (s *Server) exportSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req ExportRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}

	snap, err := s.session.Snapshot()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	name := snap.ID
	if req.Label != "" {
		name = security.SanitizeFilename(req.Label)
	}
	dir, err := security.ResolveWithin(s.outputDir, name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ex := export.New(s.fsys, export.WithLogger(s.logf), export.WithClock(s.clock))
	report, err := ex.Export(snap, dir, req.Label)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := ExportResponse{Report: report}
	if s.reports != nil {
		if resp.ID, err = s.reports.RecordReport(report); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("export written to %s but not recorded: %v", dir, err))
			return
		}
	}
	s.logf("exported session %s to %s", snap.ID, filepath.Clean(dir))
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.reports == nil {
		httputil.NotFound(w, errMissingStore.Error())
		return
	}

	limit := maxReports
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	records, err := s.reports.Reports(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve reports: %v", err))
		return
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.reports == nil {
		httputil.NotFound(w, errMissingStore.Error())
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid report id")
		return
	}
	record, err := s.reports.ReportByID(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, record)
}

var _ ReportStore = (*db.DB)(nil)
