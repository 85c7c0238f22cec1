// Package camera holds the recorded camera keyframe track and evaluates it
// into a reusable sample every frame.
package camera

import (
	"math"

	"github.com/sortie/replay/pkg/core"
)

// PoseKind tags the closed set of camera representations.
type PoseKind uint8

const (
	// KindChase orbits an externally supplied target at a distance.
	KindChase PoseKind = iota + 1
	// KindTrack holds a world point; orientation comes from the follow logic.
	KindTrack
	// KindFixed is a fully free camera.
	KindFixed
)

// String returns the discriminator used by the track file format.
func (k PoseKind) String() string {
	switch k {
	case KindChase:
		return "Chase"
	case KindTrack:
		return "Track"
	case KindFixed:
		return "Fixed"
	default:
		return "Unknown"
	}
}

// Pose is one camera representation. Only the fields of its kind are set.
// Poses are values and never change after construction.
type Pose struct {
	kind     PoseKind
	distance float64
	position core.Vec3
	pitch    float64
	yaw      float64
}

// ChasePose orbits at distance from the chase target.
func ChasePose(distance float64) Pose {
	return Pose{kind: KindChase, distance: distance}
}

// TrackPose holds position.
func TrackPose(position core.Vec3) Pose {
	return Pose{kind: KindTrack, position: position}
}

// FixedPose is a free camera at position with the given angles in radians.
func FixedPose(position core.Vec3, pitch, yaw float64) Pose {
	return Pose{kind: KindFixed, position: position, pitch: pitch, yaw: yaw}
}

func (p Pose) Kind() PoseKind      { return p.kind }
func (p Pose) Distance() float64   { return p.distance }
func (p Pose) Position() core.Vec3 { return p.position }
func (p Pose) Pitch() float64      { return p.pitch }
func (p Pose) Yaw() float64        { return p.yaw }

// Sample is the evaluated camera state. Callers keep one Sample alive and
// pass it to every EvalInto call; fields not used by Mode are zeroed.
type Sample struct {
	Mode          PoseKind
	Position      core.Vec3
	ChaseDistance float64
	Pitch         float64
	Yaw           float64
}

func (s *Sample) set(p Pose) {
	*s = Sample{Mode: p.kind}
	switch p.kind {
	case KindChase:
		s.ChaseDistance = p.distance
	case KindTrack:
		s.Position = p.position
	case KindFixed:
		s.Position = p.position
		s.Pitch = p.pitch
		s.Yaw = p.yaw
	}
}

// Interpolate blends a toward b at t into out. Poses of different kinds
// have no blend: out takes a below the midpoint and b from it on.
func Interpolate(a, b Pose, t float64, out *Sample) {
	if a.kind != b.kind {
		if t < 0.5 {
			out.set(a)
		} else {
			out.set(b)
		}
		return
	}

	*out = Sample{Mode: a.kind}
	switch a.kind {
	case KindChase:
		out.ChaseDistance = a.distance + (b.distance-a.distance)*t
	case KindTrack:
		out.Position = a.position.Lerp(b.position, t)
	case KindFixed:
		out.Position = a.position.Lerp(b.position, t)
		out.Pitch = a.pitch + (b.pitch-a.pitch)*t
		out.Yaw = LerpAngle(a.yaw, b.yaw, t)
	}
}

// WrapAngle maps a into (-π, π].
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// LerpAngle turns from toward to along the shorter arc.
func LerpAngle(from, to, t float64) float64 {
	return WrapAngle(from + WrapAngle(to-from)*t)
}
