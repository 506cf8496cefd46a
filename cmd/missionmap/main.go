package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/missionmap/internal/api"
	"github.com/banshee-data/missionmap/internal/config"
	"github.com/banshee-data/missionmap/internal/db"
	"github.com/banshee-data/missionmap/internal/fsutil"
	"github.com/banshee-data/missionmap/internal/mapio"
	"github.com/banshee-data/missionmap/internal/missionmap"
	"github.com/banshee-data/missionmap/internal/monitoring"
	"github.com/banshee-data/missionmap/internal/serialmux"
	"github.com/banshee-data/missionmap/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON service config (optional)")
	devMode     = flag.Bool("dev", false, "Replay -fixtures instead of reading the serial port")
	fixtures    = flag.String("fixtures", "fixtures.txt", "Pose feed fixture replayed in dev mode")
	listen      = flag.String("listen", ":8080", "Listen address")
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port of the pose feed; empty disables it")
	mapPath     = flag.String("map", "", "Map raster (PGM or PNG) to load at startup")
	metaPath    = flag.String("meta", "", "Map sidecar JSON for -map")
	dataDir     = flag.String("data-dir", "data", "Directory maps may be loaded from over HTTP")
	outputDir   = flag.String("output", "output", "Directory exports are written below")
	dbPath      = flag.String("db", "missionmap.db", "SQLite database path")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// demoMapSize and demoResolution describe the blank map loaded in dev mode
// when no -map is given.
const (
	demoMapSize    = 50
	demoResolution = 0.1
)

// applyFlags overrides cfg with every flag the user set explicitly.
func applyFlags(cfg *config.ServiceConfig, set map[string]bool) {
	str := func(name string, v *string, dst **string) {
		if set[name] {
			s := *v
			*dst = &s
		}
	}
	str("listen", listen, &cfg.Listen)
	str("port", port, &cfg.SerialPort)
	str("map", mapPath, &cfg.MapPath)
	str("meta", metaPath, &cfg.MetaPath)
	str("data-dir", dataDir, &cfg.DataDir)
	str("output", outputDir, &cfg.OutputDir)
	str("db", dbPath, &cfg.DBPath)
}

func loadConfig() (*config.ServiceConfig, error) {
	cfg := &config.ServiceConfig{}
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadServiceConfig(*configPath); err != nil {
			return nil, err
		}
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(cfg, set)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openFeed picks the pose feed source: fixture replay in dev mode, the
// serial port otherwise, or nothing when no port is configured.
func openFeed(cfg *config.ServiceConfig) (serialmux.SerialMuxInterface, error) {
	if *devMode {
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			return nil, fmt.Errorf("failed to open fixtures file: %w", err)
		}
		lines := serialmux.ReadFixtureLines(data)
		log.Printf("replaying %d fixture lines from %s every %s", len(lines), *fixtures, cfg.GetReplayInterval())
		return serialmux.NewMockSerialMux(lines, cfg.GetReplayInterval(), nil, true), nil
	}
	if cfg.SerialPort != nil && *cfg.SerialPort == "" {
		log.Print("no serial port configured; poses are accepted over HTTP only")
		return serialmux.NewDisabledSerialMux(), nil
	}
	mux, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), cfg.GetSerial())
	if err != nil {
		return nil, err
	}
	return mux, nil
}

// preload loads the configured map, or a blank demo map in dev mode.
func preload(session *missionmap.Session, cfg *config.ServiceConfig) error {
	if p := cfg.GetMapPath(); p != "" {
		base, meta, err := mapio.Load(fsutil.OSFileSystem{}, p, cfg.GetMetaPath())
		if err != nil {
			return err
		}
		return session.Load(base, meta)
	}
	if *devMode {
		return session.Load(missionmap.NewBaseMap(demoMapSize, demoMapSize, 200),
			missionmap.MapMetadata{Resolution: demoResolution})
	}
	return nil
}

// poseRecorder stores every feed pose in the raw pose log.
func poseRecorder(store *db.DB) func(serialmux.PoseEvent) error {
	return func(e serialmux.PoseEvent) error {
		return store.RecordPose(db.PoseEvent{
			SessionID:  e.SessionID,
			X:          e.Pose.X,
			Y:          e.Pose.Y,
			Theta:      e.Pose.Theta,
			Recorded:   e.Recorded,
			ReceivedAt: e.ReceivedAt,
		})
	}
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		path := fs.String("db", "missionmap.db", "SQLite database path")
		_ = fs.Parse(os.Args[2:])
		if err := db.RunMigrateCommand(os.Stdout, fs.Args(), *path); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	log.Printf("starting %s", version.String())

	feed, err := openFeed(cfg)
	if err != nil {
		log.Fatalf("failed to open pose feed: %v", err)
	}
	defer feed.Close()

	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	session := missionmap.NewSession(
		missionmap.WithLogger(monitoring.Default()),
		missionmap.WithSampleInterval(cfg.GetSampleInterval()),
	)
	if err := preload(session, cfg); err != nil {
		log.Fatalf("failed to load map: %v", err)
	}

	// Create a wait group for the HTTP server, serial monitor, and event handler routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor pose feed: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// apply feed lines to the session
	wg.Add(1)
	go func() {
		defer wg.Done()
		h := &serialmux.Handler{
			Session: session,
			OnPose:  poseRecorder(store),
			Logf:    monitoring.WithPrefix(monitoring.Default(), "serial"),
		}
		h.Run(ctx, feed)
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(session, feed, store, cfg.GetDataDir(), cfg.GetOutputDir(),
			api.WithLogger(monitoring.Default()),
			api.WithPoseLog(poseRecorder(store)),
		)
		mux := srv.ServeMux()
		feed.AttachAdminRoutes(mux)
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", cfg.GetListen())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
