package geo

import (
	"errors"
	"math"

	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Game coordinates are a local Cartesian frame in metres. Geometry is built
// with XYZ coordinates and no SRID.

// ErrTooFewPoints is returned when a path has fewer than two distinct points
var ErrTooFewPoints = errors.New("path needs at least two points")

// PointFromVec3 converts a position to an XYZ point
func PointFromVec3(v core.Vec3) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: v.X, Y: v.Y},
		Z:    v.Z,
		Type: geom.DimXYZ,
	})
}

// CameraPath is the polyline through every positional pose of the track in
// time order: Track and Fixed jump targets and transition targets. Chase
// poses have no world position and are skipped, as are repeats of the
// previous point.
func CameraPath(track *camera.Track) (geom.LineString, error) {
	var points []core.Vec3
	add := func(p camera.Pose) {
		if p.Kind() != camera.KindTrack && p.Kind() != camera.KindFixed {
			return
		}
		pos := p.Position()
		if n := len(points); n > 0 && points[n-1] == pos {
			return
		}
		points = append(points, pos)
	}

	for _, e := range track.Events() {
		if e.Transition != nil {
			add(e.Transition.To)
		}
		add(e.JumpTo)
	}

	if len(points) < 2 {
		return geom.LineString{}, ErrTooFewPoints
	}

	flat := make([]float64, 0, len(points)*3)
	for _, p := range points {
		flat = append(flat, p.X, p.Y, p.Z)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ)), nil
}

// PathLength is the 3D length of the camera path, 0 when there is no path.
func PathLength(track *camera.Track) float64 {
	ls, err := CameraPath(track)
	if err != nil {
		return 0
	}
	return Length3D(ls)
}

// Length3D sums the Euclidean segment lengths including Z.
func Length3D(ls geom.LineString) float64 {
	seq := ls.Coordinates()
	var total float64
	for i := 1; i < seq.Length(); i++ {
		a, b := seq.Get(i-1), seq.Get(i)
		dx, dy, dz := b.X-a.X, b.Y-a.Y, b.Z-a.Z
		total += math.Sqrt(dx*dx + dy*dy + dz*dz)
	}
	return total
}
