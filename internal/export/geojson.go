package export

import (
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/missionmap/internal/missionmap"
)

// PathFeatures converts the path into world-frame GeoJSON. Each cell is
// placed at its centre. A single-entry path becomes a Point; an empty path
// yields an empty collection.
func PathFeatures(snap missionmap.Snapshot) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	if len(snap.Path) == 0 {
		return fc, nil
	}
	mapper, err := missionmap.NewMapper(snap.Metadata.Resolution, snap.Metadata.Origin)
	if err != nil {
		return nil, err
	}

	ls := make(orb.LineString, 0, len(snap.Path))
	for _, c := range snap.Path {
		x, y := mapper.CellCenter(c)
		ls = append(ls, orb.Point{x, y})
	}

	var f *geojson.Feature
	if len(ls) == 1 {
		f = geojson.NewFeature(ls[0])
	} else {
		f = geojson.NewFeature(ls)
		f.Properties["length_m"] = planar.Length(ls)
	}
	f.Properties["session_id"] = snap.ID
	f.Properties["poses"] = len(snap.Path)
	f.Properties["coverage"] = snap.Stats.Coverage
	fc.Append(f)
	return fc, nil
}

func writeGeoJSON(w io.Writer, snap missionmap.Snapshot) error {
	fc, err := PathFeatures(snap)
	if err != nil {
		return err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
