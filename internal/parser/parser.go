// Package parser converts raw command arguments into typed mission events.
// It has no state beyond a logger and never touches the recorder.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/util"
	"github.com/sortie/replay/pkg/core"
)

// ErrArgCount is returned when a command has too few or too many arguments.
var ErrArgCount = errors.New("wrong number of arguments")

// parseUintFromFloat parses a string that may be an integer ("32") or float ("32.00") into uint64.
// Some senders have no integer type and serialize every number as a float.
func parseUintFromFloat(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != float64(uint64(f)) {
		return 0, fmt.Errorf("parseUintFromFloat: %q is not a valid uint64", s)
	}
	return uint64(f), nil
}

// parseIntFromFloat parses a string that may be an integer or float into int64.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

// Finish is the end of an attempt.
type Finish struct {
	TimeMs  int64
	Outcome core.Outcome
	Score   *int
}

// Onboard is a ship headcount, optionally forced as a baseline.
type Onboard struct {
	core.ShipOnboard
	ForceFirst bool
}

// Parser provides pure []string -> event conversion.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

func checkArgs(data []string, min, max int) error {
	if len(data) < min || len(data) > max {
		if min == max {
			return fmt.Errorf("%w: got %d, want %d", ErrArgCount, len(data), min)
		}
		return fmt.Errorf("%w: got %d, want %d-%d", ErrArgCount, len(data), min, max)
	}
	return nil
}

func clean(data []string) {
	for i, v := range data {
		data[i] = util.CleanArg(v)
	}
}

func timeArg(s string) (int64, error) {
	t, err := parseIntFromFloat(s)
	if err != nil {
		return 0, fmt.Errorf("error parsing time: %w", err)
	}
	if t < 0 {
		return 0, fmt.Errorf("error parsing time: %d is negative", t)
	}
	return t, nil
}

func countArg(s string) (int, error) {
	c, err := parseUintFromFloat(s)
	if err != nil {
		return 0, fmt.Errorf("error parsing count: %w", err)
	}
	return int(c), nil
}

func padArg(structure, block string) (core.PadKey, error) {
	sid, err := parseIntFromFloat(structure)
	if err != nil {
		return core.PadKey{}, fmt.Errorf("error parsing structure id: %w", err)
	}
	bi, err := parseIntFromFloat(block)
	if err != nil {
		return core.PadKey{}, fmt.Errorf("error parsing block index: %w", err)
	}
	return core.PadKey{StructureID: int(sid), BlockIndex: int(bi)}, nil
}

// ParseStart parses [missionId]. The mission id may be empty.
func (p *Parser) ParseStart(data []string) (string, error) {
	if err := checkArgs(data, 0, 1); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	return util.CleanArg(data[0]), nil
}

// ParseDestruct parses [timeMs, durationMs].
func (p *Parser) ParseDestruct(data []string) (core.DestructStart, error) {
	var out core.DestructStart
	if err := checkArgs(data, 2, 2); err != nil {
		return out, err
	}
	clean(data)

	t, err := timeArg(data[0])
	if err != nil {
		return out, err
	}
	d, err := parseIntFromFloat(data[1])
	if err != nil {
		return out, fmt.Errorf("error parsing duration: %w", err)
	}
	if d < 0 {
		return out, fmt.Errorf("error parsing duration: %d is negative", d)
	}
	return core.DestructStart{TimeMs: t, DurationMs: d}, nil
}

// ParseLatchOn parses [timeMs, structureId, blockIndex].
func (p *Parser) ParseLatchOn(data []string) (core.PadLatch, error) {
	var out core.PadLatch
	if err := checkArgs(data, 3, 3); err != nil {
		return out, err
	}
	clean(data)

	t, err := timeArg(data[0])
	if err != nil {
		return out, err
	}
	pad, err := padArg(data[1], data[2])
	if err != nil {
		return out, err
	}
	return core.PadLatch{TimeMs: t, Latched: true, Pad: pad}, nil
}

// ParseLatchOff parses [timeMs].
func (p *Parser) ParseLatchOff(data []string) (core.PadLatch, error) {
	var out core.PadLatch
	if err := checkArgs(data, 1, 1); err != nil {
		return out, err
	}
	clean(data)

	t, err := timeArg(data[0])
	if err != nil {
		return out, err
	}
	return core.PadLatch{TimeMs: t}, nil
}

// ParseOnboard parses [timeMs, count, (force)].
func (p *Parser) ParseOnboard(data []string) (Onboard, error) {
	var out Onboard
	if err := checkArgs(data, 2, 3); err != nil {
		return out, err
	}
	clean(data)

	t, err := timeArg(data[0])
	if err != nil {
		return out, err
	}
	c, err := countArg(data[1])
	if err != nil {
		return out, err
	}
	out.TimeMs = t
	out.Count = c
	if len(data) == 3 && data[2] != "" {
		force, err := strconv.ParseBool(data[2])
		if err != nil {
			return out, fmt.Errorf("error parsing force flag: %w", err)
		}
		out.ForceFirst = force
	}
	return out, nil
}

// ParseWaiting parses [timeMs, structureId, blockIndex, count].
func (p *Parser) ParseWaiting(data []string) (core.PadWaiting, error) {
	var out core.PadWaiting
	if err := checkArgs(data, 4, 4); err != nil {
		return out, err
	}
	clean(data)

	t, err := timeArg(data[0])
	if err != nil {
		return out, err
	}
	pad, err := padArg(data[1], data[2])
	if err != nil {
		return out, err
	}
	c, err := countArg(data[3])
	if err != nil {
		return out, err
	}
	return core.PadWaiting{TimeMs: t, Pad: pad, Count: c}, nil
}

// ParseCamera parses [timeMs, jumpTo, (transitionTo, transitionType)].
// Poses are JSON objects in the camera track format. The transition
// target and easing come together or not at all.
func (p *Parser) ParseCamera(data []string) (camera.Event, error) {
	var out camera.Event
	if err := checkArgs(data, 2, 4); err != nil {
		return out, err
	}
	clean(data)

	t, err := timeArg(data[0])
	if err != nil {
		return out, err
	}
	out.TimeMs = t

	if err := json.Unmarshal([]byte(data[1]), &out.JumpTo); err != nil {
		return out, fmt.Errorf("error unmarshalling jumpTo: %w", err)
	}

	var to, easing string
	if len(data) > 2 {
		to = data[2]
	}
	if len(data) > 3 {
		easing = data[3]
	}
	if (to == "") != (easing == "") {
		return out, fmt.Errorf("transition target and type must be given together")
	}
	if to == "" {
		return out, nil
	}

	tr := &camera.Transition{}
	if err := json.Unmarshal([]byte(to), &tr.To); err != nil {
		return out, fmt.Errorf("error unmarshalling transitionTo: %w", err)
	}
	if tr.Easing, err = camera.ParseEasing(easing); err != nil {
		return out, fmt.Errorf("error parsing transitionType: %w", err)
	}
	out.Transition = tr
	return out, nil
}

// ParseFinish parses [timeMs, outcome, (score)]. Unrecognised outcomes are
// kept as unknown.
func (p *Parser) ParseFinish(data []string) (Finish, error) {
	var out Finish
	if err := checkArgs(data, 2, 3); err != nil {
		return out, err
	}
	clean(data)

	t, err := timeArg(data[0])
	if err != nil {
		return out, err
	}
	out.TimeMs = t
	out.Outcome = core.ParseOutcome(data[1])
	if out.Outcome == core.OutcomeUnknown && data[1] != string(core.OutcomeUnknown) {
		p.logger.Debug("Unrecognised outcome", "outcome", data[1])
	}

	if len(data) == 3 && data[2] != "" {
		s, err := parseIntFromFloat(data[2])
		if err != nil {
			return out, fmt.Errorf("error parsing score: %w", err)
		}
		score := int(s)
		out.Score = &score
	}
	return out, nil
}
