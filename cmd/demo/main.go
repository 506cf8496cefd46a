// Command demo records a diagonal pass over a blank 50x50 map and exports
// the result. With -server it drives a running missionmap service instead.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/missionmap/internal/api"
	"github.com/banshee-data/missionmap/internal/export"
	"github.com/banshee-data/missionmap/internal/fsutil"
	"github.com/banshee-data/missionmap/internal/httputil"
	"github.com/banshee-data/missionmap/internal/mapio"
	"github.com/banshee-data/missionmap/internal/missionmap"
	"github.com/banshee-data/missionmap/internal/monitoring"
)

var (
	outDir    = flag.String("out", "demo_output", "Directory for the demo map and exports")
	serverURL = flag.String("server", "", "Base URL of a running service; its data dir must contain the demo map")
	label     = flag.String("label", "demo", "Export label")
)

const (
	mapSize       = 50
	mapIntensity  = 200
	mapResolution = 0.1
	mapName       = "demo_map"
	sidecarJSON   = `{"resolution": 0.1, "origin": [0.0, 0.0, 0.0], "width": 50, "height": 50}`
)

// trajectory is the diagonal pass: (i*0.1, i*0.1) for i = 0, 5, ..., 45.
func trajectory() [][2]float64 {
	var poses [][2]float64
	for i := 0; i < mapSize; i += 5 {
		v := float64(i) * mapResolution
		poses = append(poses, [2]float64{v, v})
	}
	return poses
}

// writeDemoMap writes the blank map raster and its sidecar into dir.
func writeDemoMap(fsys fsutil.FileSystem, dir string) (mapPath, metaPath string, err error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	base := missionmap.NewBaseMap(mapSize, mapSize, mapIntensity)
	var buf bytes.Buffer
	if err := mapio.EncodePGM(&buf, mapio.ToGray(base.Width, base.Height, base.Pix)); err != nil {
		return "", "", err
	}
	mapPath = filepath.Join(dir, mapName+".pgm")
	if err := fsys.WriteFile(mapPath, buf.Bytes(), 0644); err != nil {
		return "", "", err
	}
	metaPath = filepath.Join(dir, mapName+".json")
	if err := fsys.WriteFile(metaPath, []byte(sidecarJSON), 0644); err != nil {
		return "", "", err
	}
	return mapPath, metaPath, nil
}

// runLocal performs the demo in-process and returns the export report.
func runLocal(fsys fsutil.FileSystem, dir string, logf monitoring.Logf) (export.Report, error) {
	mapPath, metaPath, err := writeDemoMap(fsys, dir)
	if err != nil {
		return export.Report{}, err
	}
	base, meta, err := mapio.Load(fsys, mapPath, metaPath)
	if err != nil {
		return export.Report{}, err
	}

	session := missionmap.NewSession(missionmap.WithLogger(logf))
	if err := session.Load(base, meta); err != nil {
		return export.Report{}, err
	}
	if err := session.Start(); err != nil {
		return export.Report{}, err
	}
	for _, p := range trajectory() {
		session.UpdatePose(p[0], p[1], 0)
	}
	if err := session.Stop(); err != nil {
		return export.Report{}, err
	}

	snap, err := session.Snapshot()
	if err != nil {
		return export.Report{}, err
	}
	return export.New(fsys, export.WithLogger(logf)).Export(snap, dir, *label)
}

// runRemote drives the service at c. The map files must already be in the
// service's data directory under mapName.
func runRemote(ctx context.Context, c *api.Client) (export.Report, error) {
	if _, err := c.Load(ctx, mapName+".pgm", mapName+".json"); err != nil {
		return export.Report{}, err
	}
	if _, err := c.Start(ctx); err != nil {
		return export.Report{}, err
	}
	for _, p := range trajectory() {
		if _, err := c.Pose(ctx, p[0], p[1], 0); err != nil {
			return export.Report{}, err
		}
	}
	if _, err := c.Stop(ctx); err != nil {
		return export.Report{}, err
	}
	resp, err := c.Export(ctx, *label)
	if err != nil {
		return export.Report{}, err
	}
	return resp.Report, nil
}

func printReport(w io.Writer, r export.Report) {
	fmt.Fprintf(w, "coverage: %.2f%%\n", r.Coverage)
	fmt.Fprintf(w, "miss:     %.2f%%\n", r.Miss)
	fmt.Fprintf(w, "poses:    %d\n", r.PathLength)
	fmt.Fprintf(w, "output:   %s\n", r.Dir)
	for _, f := range r.Files {
		fmt.Fprintf(w, "  %s\n", f)
	}
}

func main() {
	flag.Parse()
	logf := monitoring.Default()

	var (
		report export.Report
		err    error
	)
	if *serverURL == "" {
		report, err = runLocal(fsutil.OSFileSystem{}, *outDir, logf)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c := api.NewClient(*serverURL, httputil.NewClient(10*time.Second))
		report, err = runRemote(ctx, c)
	}
	if err != nil {
		log.Fatalf("demo failed: %v", err)
	}
	printReport(os.Stdout, report)
}
