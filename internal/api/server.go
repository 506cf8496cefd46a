// Package api serves the mission map session over HTTP/JSON.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/missionmap/internal/db"
	"github.com/banshee-data/missionmap/internal/export"
	"github.com/banshee-data/missionmap/internal/fsutil"
	"github.com/banshee-data/missionmap/internal/httputil"
	"github.com/banshee-data/missionmap/internal/missionmap"
	"github.com/banshee-data/missionmap/internal/monitoring"
	"github.com/banshee-data/missionmap/internal/serialmux"
	"github.com/banshee-data/missionmap/internal/timeutil"
	"github.com/banshee-data/missionmap/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// ReportStore persists export reports. *db.DB implements it.
type ReportStore interface {
	RecordReport(export.Report) (int64, error)
	Reports(limit int) ([]db.ReportRecord, error)
	ReportByID(id int64) (db.ReportRecord, error)
}

type Server struct {
	session   *missionmap.Session
	m         serialmux.SerialMuxInterface
	reports   ReportStore
	fsys      fsutil.FileSystem
	dataDir   string
	outputDir string
	logf      monitoring.Logf
	clock     timeutil.Clock
	onPose    func(serialmux.PoseEvent) error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's log function.
func WithLogger(logf monitoring.Logf) Option {
	return func(s *Server) { s.logf = monitoring.WithPrefix(logf, "api") }
}

// WithClock sets the clock used for exports and pose events.
func WithClock(c timeutil.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithFileSystem sets the file system maps are read from and exports are
// written to.
func WithFileSystem(fsys fsutil.FileSystem) Option {
	return func(s *Server) { s.fsys = fsys }
}

// WithPoseLog receives every pose posted to /session/pose.
func WithPoseLog(fn func(serialmux.PoseEvent) error) Option {
	return func(s *Server) { s.onPose = fn }
}

// NewServer serves session. Map paths in load requests must lie inside
// dataDir and exports are written below outputDir.
func NewServer(session *missionmap.Session, m serialmux.SerialMuxInterface, reports ReportStore, dataDir, outputDir string, opts ...Option) *Server {
	s := &Server{
		session:   session,
		m:         m,
		reports:   reports,
		fsys:      fsutil.OSFileSystem{},
		dataDir:   dataDir,
		outputDir: outputDir,
		logf:      monitoring.WithPrefix(nil, "api"),
		clock:     timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", s.showSession)
	mux.HandleFunc("/session/load", s.loadMap)
	mux.HandleFunc("/session/start", s.control(s.session.Start))
	mux.HandleFunc("/session/pause", s.control(s.session.Pause))
	mux.HandleFunc("/session/resume", s.control(s.session.Resume))
	mux.HandleFunc("/session/stop", s.control(s.session.Stop))
	mux.HandleFunc("/session/pose", s.postPose)
	mux.HandleFunc("/session/path", s.showPath)
	mux.HandleFunc("/session/export", s.exportSession)
	mux.HandleFunc("/reports", s.listReports)
	mux.HandleFunc("/reports/{id}", s.showReport)
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/debug/coverage", s.coverageChart)
	mux.HandleFunc("/debug/timeline", s.timelineChart)
	mux.HandleFunc("/version", s.showVersion)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	command := r.FormValue("command")
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}
	if err := s.m.SendCommand(command); err != nil {
		httputil.InternalServerError(w, "failed to send command")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"sent": command})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Info())
}
