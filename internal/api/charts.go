package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/missionmap/internal/httputil"
)

// defaultMaxPoints bounds each scatter series of /debug/coverage.
const defaultMaxPoints = 20000

// coverageChart renders the mask, the non-traversable cells and the path as
// a scatter plot in grid coordinates, row 0 at the top.
// Query params:
//   - max_points (optional; default 20000) per series
func (s *Server) coverageChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	maxPoints := defaultMaxPoints
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v >= 100 && v <= 200000 {
			maxPoints = v
		}
	}

	snap, err := s.session.Snapshot()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var blocked, covered []opts.ScatterData
	for y := 0; y < snap.Base.Height; y++ {
		for x := 0; x < snap.Base.Width; x++ {
			i := y*snap.Base.Width + x
			switch {
			case snap.Mask[i] != 0:
				covered = append(covered, opts.ScatterData{Value: []interface{}{x, y}})
			case snap.Base.Pix[i] == 0:
				blocked = append(blocked, opts.ScatterData{Value: []interface{}{x, y}})
			}
		}
	}
	path := make([]opts.ScatterData, 0, len(snap.Path))
	for _, c := range snap.Path {
		path = append(path, opts.ScatterData{Value: []interface{}{c.X, c.Y}})
	}

	blocked, bStride := downsample(blocked, maxPoints)
	covered, cStride := downsample(covered, maxPoints)
	path, _ = downsample(path, maxPoints)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Mission map coverage", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Coverage %.2f%% (%s)", snap.Stats.Coverage, snap.State),
			Subtitle: fmt.Sprintf("session=%s %dx%d covered stride=%d blocked stride=%d",
				snap.ID, snap.Base.Width, snap.Base.Height, cStride, bStride),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: snap.Base.Width, Name: "x (cell)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: snap.Base.Height, Inverse: opts.Bool(true), Name: "y (cell)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("blocked", blocked,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#555555"}))
	scatter.AddSeries("covered", covered,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#35b779"}))
	scatter.AddSeries("path", path,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#d62728"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// downsample keeps every stride-th point so at most limit remain.
func downsample(data []opts.ScatterData, limit int) ([]opts.ScatterData, int) {
	if len(data) <= limit {
		return data, 1
	}
	stride := int(math.Ceil(float64(len(data)) / float64(limit)))
	out := make([]opts.ScatterData, 0, len(data)/stride+1)
	for i := 0; i < len(data); i += stride {
		out = append(out, data[i])
	}
	return out, stride
}

// timelineChart renders coverage percentage against recorded pose count.
func (s *Server) timelineChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	timeline, err := s.session.Timeline()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	x := make([]int, len(timeline))
	y := make([]opts.LineData, len(timeline))
	for i, sample := range timeline {
		x[i] = sample.Index
		y[i] = opts.LineData{Value: sample.Coverage, Name: sample.At.Format("15:04:05")}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Mission map coverage timeline", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Coverage over time", Subtitle: fmt.Sprintf("session=%s samples=%d", s.session.ID(), len(timeline))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "poses", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "coverage (%)", Min: 0}),
	)
	line.SetXAxis(x).AddSeries("coverage", y,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false), ShowSymbol: opts.Bool(true)}),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
