package export

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/banshee-data/missionmap/internal/mapio"
	"github.com/banshee-data/missionmap/internal/missionmap"
)

var (
	coverageColor = color.RGBA{G: 255, A: 255}
	pathColor     = color.RGBA{R: 255, A: 255}
)

// CoverageRaster returns the per-pixel maximum of the base map and the mask.
func CoverageRaster(snap missionmap.Snapshot) *image.Gray {
	img := mapio.ToGray(snap.Base.Width, snap.Base.Height, snap.Base.Pix)
	for i, v := range snap.Mask {
		if i < len(img.Pix) && v > img.Pix[i] {
			img.Pix[i] = v
		}
	}
	return img
}

// PathRaster draws the path as a 1 px polyline at full intensity on a blank
// canvas sized from the metadata. A single-entry path is drawn as a point;
// an empty path leaves the canvas blank.
func PathRaster(snap missionmap.Snapshot) *image.Gray {
	w, h := canvasSize(snap)
	img := image.NewGray(image.Rect(0, 0, w, h))
	polyline(snap.Path, w, h, func(x, y int) {
		img.Pix[y*img.Stride+x] = missionmap.Covered
	})
	return img
}

// CombinedImage renders the base map in RGB with covered cells in green and
// the path in red, 2 px wide, on top.
func CombinedImage(snap missionmap.Snapshot) *image.RGBA {
	w, h := snap.Base.Width, snap.Base.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), mapio.ToGray(w, h, snap.Base.Pix), image.Point{}, draw.Src)

	for i, v := range snap.Mask {
		if v != 0 && i < w*h {
			img.SetRGBA(i%w, i/w, coverageColor)
		}
	}
	polyline(snap.Path, w, h, func(x, y int) {
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2; dx++ {
				if x+dx < w && y+dy < h {
					img.SetRGBA(x+dx, y+dy, pathColor)
				}
			}
		}
	})
	return img
}

func canvasSize(snap missionmap.Snapshot) (int, int) {
	w, h := snap.Metadata.Width, snap.Metadata.Height
	if w <= 0 {
		w = snap.Base.Width
	}
	if h <= 0 {
		h = snap.Base.Height
	}
	return w, h
}

// polyline walks consecutive path cells with Bresenham's algorithm and calls
// plot for every pixel inside the w x h canvas.
func polyline(path []missionmap.Cell, w, h int, plot func(x, y int)) {
	visit := func(x, y int) {
		if x >= 0 && y >= 0 && x < w && y < h {
			plot(x, y)
		}
	}
	switch len(path) {
	case 0:
		return
	case 1:
		visit(path[0].X, path[0].Y)
		return
	}
	for i := 1; i < len(path); i++ {
		segment(path[i-1], path[i], w, h, visit)
	}
}

func segment(a, b missionmap.Cell, w, h int, visit func(x, y int)) {
	a, b, ok := clipSegment(a, b, w, h)
	if !ok {
		return
	}

	x, y := a.X, a.Y
	dx, dy := abs(b.X-a.X), -abs(b.Y-a.Y)
	sx, sy := sign(b.X-a.X), sign(b.Y-a.Y)
	e := dx + dy
	for {
		visit(x, y)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

// clipSegment trims a-b to the w x h canvas (Liang-Barsky). Segments that
// are already inside come back unchanged; ok is false when nothing of the
// segment lies on the canvas.
func clipSegment(a, b missionmap.Cell, w, h int) (missionmap.Cell, missionmap.Cell, bool) {
	if w <= 0 || h <= 0 {
		return a, b, false
	}
	a, b = clampCell(a), clampCell(b)
	x0, y0 := float64(a.X), float64(a.Y)
	dx, dy := float64(b.X)-x0, float64(b.Y)-y0
	t0, t1 := 0.0, 1.0
	for _, edge := range [4][2]float64{
		{-dx, x0},
		{dx, float64(w-1) - x0},
		{-dy, y0},
		{dy, float64(h-1) - y0},
	} {
		p, q := edge[0], edge[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return a, b, false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return a, b, false
			}
			t1 = math.Min(t1, r)
		}
	}
	at := func(t float64) missionmap.Cell {
		return missionmap.Cell{
			X: clampInt(int(math.Round(x0+t*dx)), 0, w-1),
			Y: clampInt(int(math.Round(y0+t*dy)), 0, h-1),
		}
	}
	if t0 > 0 {
		a = at(t0)
	}
	if t1 < 1 {
		b = at(t1)
	}
	return a, b, true
}

// maxCoord keeps endpoints exact as float64.
const maxCoord = 1 << 53

func clampCell(c missionmap.Cell) missionmap.Cell {
	return missionmap.Cell{
		X: clampInt(c.X, -maxCoord, maxCoord),
		Y: clampInt(c.Y, -maxCoord, maxCoord),
	}
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
