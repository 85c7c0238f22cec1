package missionlog

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/sortie/replay/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populated() *Log {
	l := newRecording()
	l.LogShipOnboard(0, 0, true)
	l.LogDestructStart(1000, 5000)
	l.LogPadLatchOn(1200, padB)
	l.LogPadWaiting(1200, padC, 6)
	l.LogPadWaiting(1250, padA, 3)
	l.LogShipOnboard(1500, 2, false)
	l.LogPadWaiting(1500, padA, 1)
	l.LogPadLatchOff(1800)
	l.LogPadLatchOn(2500, padC)
	l.LogShipOnboard(2600, 8, false)
	l.LogPadWaiting(2600, padC, 0)
	return l
}

const populatedText = `[Mission]
version=1
destructStart=1000,5000
padLatchOn=1200,1,2
padLatchOff=1800
padLatchOn=2500,4,1
shipOnboard=0,0
shipOnboard=1500,2
shipOnboard=2600,8
padWaiting=1250,1,0,3
padWaiting=1500,1,0,1
padWaiting=1200,4,1,6
padWaiting=2600,4,1,0
`

func TestMarshalText_Canonical(t *testing.T) {
	assert.Equal(t, populatedText, populated().String())
}

func TestMarshalText_Empty(t *testing.T) {
	assert.Equal(t, "[Mission]\nversion=1\n", New().String())
}

func TestWriteTo(t *testing.T) {
	var buf bytes.Buffer
	n, err := populated().WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(populatedText)), n)
	assert.Equal(t, populatedText, buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteTo_Error(t *testing.T) {
	_, err := populated().WriteTo(failingWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRoundTrip(t *testing.T) {
	orig := populated()
	parsed, err := ParseString(orig.String())
	require.NoError(t, err)

	assert.False(t, parsed.Recording())
	assert.Equal(t, orig.String(), parsed.String())

	times := []int64{-100, 0, 999, 1000, 1200, 1249, 1250, 1500, 1799, 1800, 2500, 2600, 5999, 6000, 100000}
	for _, q := range times {
		assert.Equal(t, orig.CountdownAt(q), parsed.CountdownAt(q), "countdown t=%d", q)
		assert.Equal(t, orig.PadLatchedPadAt(q), parsed.PadLatchedPadAt(q), "latch t=%d", q)
		assert.Equal(t, orig.ShipOnboardAt(q), parsed.ShipOnboardAt(q), "onboard t=%d", q)
		for _, pad := range []core.PadKey{padA, padB, padC} {
			assert.Equal(t, orig.PadWaitingAt(q, pad), parsed.PadWaitingAt(q, pad), "waiting %s t=%d", pad, q)
		}
	}
}

func TestParse_Tolerant(t *testing.T) {
	text := `
# recorded on device 7
[Mission]
version=1

shipOnboard=100,1
shipOnboard=oops,2
shipOnboard=200
padWaiting=100,1,0
padWaiting=100,1,0,5,extra
unknownKey=1,2,3
no equals sign here
padLatchOff=
  shipOnboard = 300 , 3
`
	l, err := ParseString(text)
	require.NoError(t, err)

	assert.Equal(t, []core.ShipOnboard{{TimeMs: 100, Count: 1}, {TimeMs: 300, Count: 3}}, l.OnboardEvents())
	assert.Equal(t, []core.PadWaiting{{TimeMs: 100, Pad: padA, Count: 5}}, l.WaitingEvents(padA))
	assert.Empty(t, l.LatchEvents())
}

func TestParse_OversizeLineSkipped(t *testing.T) {
	tests := []struct {
		name string
		long string
	}{
		{"comment", "#" + strings.Repeat("x", 70000)},
		{"event", "shipOnboard=200," + strings.Repeat("9", 70000)},
		{"just under the limit", "#" + strings.Repeat("x", maxLineLength-2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "shipOnboard=100,1\n" + tt.long + "\nshipOnboard=300,3\n"
			l, err := ParseString(text)
			require.NoError(t, err)
			assert.Equal(t, []core.ShipOnboard{{TimeMs: 100, Count: 1}, {TimeMs: 300, Count: 3}}, l.OnboardEvents())
		})
	}
}

func TestParse_LastLineWithoutNewline(t *testing.T) {
	l, err := ParseString("shipOnboard=100,1\nshipOnboard=300,3")
	require.NoError(t, err)
	assert.Len(t, l.OnboardEvents(), 2)
}

func TestParse_SortsOutOfOrder(t *testing.T) {
	l, err := ParseString("shipOnboard=300,3\nshipOnboard=100,1\npadLatchOff=50\npadLatchOn=10,1,0\n")
	require.NoError(t, err)

	assert.Equal(t, []core.ShipOnboard{{TimeMs: 100, Count: 1}, {TimeMs: 300, Count: 3}}, l.OnboardEvents())
	latches := l.LatchEvents()
	require.Len(t, latches, 2)
	assert.Equal(t, int64(10), latches[0].TimeMs)
	assert.True(t, latches[0].Latched)
}

func TestParse_FirstDestructWins(t *testing.T) {
	l, err := ParseString("destructStart=10,20\ndestructStart=30,40\n")
	require.NoError(t, err)

	d, ok := l.DestructStart()
	require.True(t, ok)
	assert.Equal(t, core.DestructStart{TimeMs: 10, DurationMs: 20}, d)
}

func TestParse_ResumeRecordingDedup(t *testing.T) {
	l, err := ParseString("shipOnboard=100,4\npadWaiting=100,1,0,2\npadLatchOn=100,1,0\n")
	require.NoError(t, err)
	l.SetRecording(true)

	l.LogShipOnboard(200, 4, false)
	l.LogPadWaiting(200, padA, 2)
	l.LogPadLatchOn(200, padA)
	assert.Equal(t, 3, l.Stats().Total(), "resumed writes dedup against the parsed tail")

	l.LogShipOnboard(300, 5, false)
	assert.Equal(t, 2, l.Stats().Onboard)
}

func TestParse_ResetsCaches(t *testing.T) {
	l := populated()
	l.ShipOnboardAt(1500)

	require.NoError(t, l.UnmarshalText([]byte(populatedText)))
	assert.False(t, l.Recording())
	assert.True(t, l.ShipOnboardAt(1500).Changed)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestParse_ReadError(t *testing.T) {
	_, err := Parse(errReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading mission log")
}

func TestParseFields(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		out     []int64
		wantErr bool
	}{
		{"exact", "1,2", 2, []int64{1, 2}, false},
		{"spaces", " 1 , -2 ", 2, []int64{1, -2}, false},
		{"extra ignored", "1,2,3", 2, []int64{1, 2}, false},
		{"short", "1", 2, nil, true},
		{"not a number", "1,x", 2, nil, true},
		{"float rejected", "1.5,2", 2, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFields(tt.input, tt.want)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.out, got)
		})
	}
}

func TestParse_IdenticalLogsSerializeIdentically(t *testing.T) {
	a := newRecording()
	b := newRecording()
	for _, pad := range []core.PadKey{padC, padA, padB} {
		a.LogPadWaiting(10, pad, 1)
	}
	for _, pad := range []core.PadKey{padB, padC, padA} {
		b.LogPadWaiting(10, pad, 1)
	}
	assert.Equal(t, a.String(), b.String())
	assert.True(t, strings.HasPrefix(a.String(), "[Mission]\nversion=1\n"))
}
