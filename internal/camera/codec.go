package camera

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sortie/replay/pkg/core"
)

// TrackFormatVersion is written into every encoded track.
const TrackFormatVersion = 1

// ErrUnknownPose is returned when a pose discriminator is not recognized.
var ErrUnknownPose = errors.New("unknown camera pose type")

type poseJSON struct {
	Type     string     `json:"type"`
	Distance float64    `json:"distance,omitempty"`
	Position *core.Vec3 `json:"position,omitempty"`
	Pitch    float64    `json:"pitch,omitempty"`
	Yaw      float64    `json:"yaw,omitempty"`
}

type eventJSON struct {
	TimeMs         int64   `json:"timeMs"`
	JumpTo         Pose    `json:"jumpTo"`
	TransitionTo   *Pose   `json:"transitionTo,omitempty"`
	TransitionType *Easing `json:"transitionType,omitempty"`
}

type trackJSON struct {
	Version int         `json:"version"`
	Events  []eventJSON `json:"events"`
}

func (p Pose) MarshalJSON() ([]byte, error) {
	out := poseJSON{Type: p.kind.String()}
	switch p.kind {
	case KindChase:
		out.Distance = p.distance
	case KindTrack:
		out.Position = &p.position
	case KindFixed:
		out.Position = &p.position
		out.Pitch = p.pitch
		out.Yaw = p.yaw
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownPose, p.kind)
	}
	return json.Marshal(out)
}

func (p *Pose) UnmarshalJSON(b []byte) error {
	var in poseJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	var pos core.Vec3
	if in.Position != nil {
		pos = *in.Position
	}

	switch in.Type {
	case "Chase":
		*p = ChasePose(in.Distance)
	case "Track":
		*p = TrackPose(pos)
	case "Fixed":
		*p = FixedPose(pos, in.Pitch, in.Yaw)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPose, in.Type)
	}
	return nil
}

func (t *Track) MarshalJSON() ([]byte, error) {
	doc := trackJSON{Version: TrackFormatVersion, Events: make([]eventJSON, 0, t.Len())}
	for _, e := range t.Events() {
		ej := eventJSON{TimeMs: e.TimeMs, JumpTo: e.JumpTo}
		if e.Transition != nil {
			to, easing := e.Transition.To, e.Transition.Easing
			ej.TransitionTo = &to
			ej.TransitionType = &easing
		}
		doc.Events = append(doc.Events, ej)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON replaces the track contents. The loaded track is sorted.
func (t *Track) UnmarshalJSON(b []byte) error {
	var doc trackJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	if doc.Version != TrackFormatVersion {
		return fmt.Errorf("unsupported camera track version %d", doc.Version)
	}

	events := make([]Event, 0, len(doc.Events))
	for i, ej := range doc.Events {
		e := Event{TimeMs: ej.TimeMs, JumpTo: ej.JumpTo}
		switch {
		case ej.TransitionTo != nil && ej.TransitionType != nil:
			e.Transition = &Transition{To: *ej.TransitionTo, Easing: *ej.TransitionType}
		case ej.TransitionTo != nil || ej.TransitionType != nil:
			return fmt.Errorf("event %d: transitionTo and transitionType must be set together", i)
		}
		events = append(events, e)
	}

	t.events = events
	t.Sort()
	return nil
}

// ReadTrack decodes a track document from r.
func ReadTrack(r io.Reader) (*Track, error) {
	t := &Track{}
	if err := json.NewDecoder(r).Decode(t); err != nil {
		return nil, fmt.Errorf("error decoding camera track: %w", err)
	}
	return t, nil
}

// WriteTrack encodes t to w.
func WriteTrack(w io.Writer, t *Track) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("error encoding camera track: %w", err)
	}
	return nil
}
