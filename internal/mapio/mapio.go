// Package mapio decodes map rasters and their JSON sidecars into the
// in-memory form the mission map session consumes.
package mapio

import (
	"bufio"
	"fmt"
	"image"
	"image/draw"
	_ "image/png" // register PNG with image.Decode
	"io"

	"github.com/spakin/netpbm"

	"github.com/banshee-data/missionmap/internal/config"
	"github.com/banshee-data/missionmap/internal/fsutil"
	"github.com/banshee-data/missionmap/internal/missionmap"
)

// Load decodes the raster at mapPath and resolves its sidecar at metaPath.
// An empty metaPath uses the sidecar defaults. Width and height default to
// the raster's dimensions.
func Load(fsys fsutil.FileSystem, mapPath, metaPath string) (missionmap.BaseMap, missionmap.MapMetadata, error) {
	sidecar := &config.MapSidecar{}
	if metaPath != "" {
		var err error
		sidecar, err = config.LoadMapSidecar(fsys, metaPath)
		if err != nil {
			return missionmap.BaseMap{}, missionmap.MapMetadata{}, err
		}
	}

	f, err := fsys.Open(mapPath)
	if err != nil {
		return missionmap.BaseMap{}, missionmap.MapMetadata{}, fmt.Errorf("failed to open map %s: %w: %v", mapPath, missionmap.ErrInputDecode, err)
	}
	defer f.Close()

	base, err := DecodeRaster(f)
	if err != nil {
		return missionmap.BaseMap{}, missionmap.MapMetadata{}, fmt.Errorf("failed to decode map %s: %w", mapPath, err)
	}
	return base, sidecar.Metadata(base.Width, base.Height), nil
}

// DecodeRaster reads a PGM/PBM/PPM/PAM or PNG image and converts it to an
// 8-bit grayscale base map.
func DecodeRaster(r io.Reader) (missionmap.BaseMap, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)

	var (
		img image.Image
		err error
	)
	if isNetpbm(magic) {
		img, err = netpbm.Decode(br, &netpbm.DecodeOptions{Target: netpbm.PGM})
	} else {
		img, _, err = image.Decode(br)
	}
	if err != nil {
		return missionmap.BaseMap{}, fmt.Errorf("%w: %v", missionmap.ErrInputDecode, err)
	}
	base := ToBaseMap(img)
	if err := base.Validate(); err != nil {
		return missionmap.BaseMap{}, err
	}
	return base, nil
}

func isNetpbm(magic []byte) bool {
	return len(magic) == 2 && magic[0] == 'P' && magic[1] >= '1' && magic[1] <= '7'
}

// ToBaseMap converts any image to a row-major 8-bit grayscale base map
// anchored at (0, 0).
func ToBaseMap(img image.Image) missionmap.BaseMap {
	b := img.Bounds()
	gray, ok := img.(*image.Gray)
	if !ok || gray.Stride != b.Dx() || b.Min != (image.Point{}) {
		gray = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	}
	pix := make([]uint8, len(gray.Pix))
	copy(pix, gray.Pix)
	return missionmap.BaseMap{Width: b.Dx(), Height: b.Dy(), Pix: pix}
}

// ToGray wraps a copy of pix as a width x height grayscale image.
func ToGray(width, height int, pix []uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	copy(img.Pix, pix)
	return img
}

// EncodePGM writes img as a binary 8-bit PGM.
func EncodePGM(w io.Writer, img *image.Gray) error {
	return netpbm.Encode(w, img, &netpbm.EncodeOptions{
		Format:   netpbm.PGM,
		MaxValue: 255,
	})
}
