package filestorage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/config"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/internal/storage"
	"github.com/sortie/replay/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

const missionText = `[Mission]
version=1
destructStart=500,20000
padLatchOn=700,3,1
padLatchOff=1400
shipOnboard=0,0
shipOnboard=1200,4
padWaiting=650,3,1,4
padWaiting=1200,3,1,0
`

func newAttempt(t *testing.T, id, mission string, started time.Time) *storage.Attempt {
	t.Helper()
	log, err := missionlog.ParseString(missionText)
	require.NoError(t, err)
	return &storage.Attempt{
		Summary: core.FlightSummary{
			AttemptID:  id,
			MissionID:  mission,
			StartedAt:  started,
			DurationMs: 1400,
			Outcome:    core.OutcomeCompleted,
		},
		Log: log,
		Track: camera.NewTrack(
			camera.Event{TimeMs: 0, JumpTo: camera.ChasePose(8)},
			camera.Event{
				TimeMs: 1000,
				JumpTo: camera.FixedPose(core.Vec3{X: 1, Y: 2, Z: 3}, 10, 90),
				Transition: &camera.Transition{
					To:     camera.FixedPose(core.Vec3{X: 1, Y: 2, Z: 2}, 0, 80),
					Easing: camera.EaseBoth,
				},
			},
		),
	}
}

func newTestBackend(t *testing.T, compress bool) *Backend {
	t.Helper()
	b := New(config.FileConfig{OutputDir: filepath.Join(t.TempDir(), "out"), CompressOutput: compress}, nil)
	require.NoError(t, b.Init())
	return b
}

var t0 = time.Date(2024, 3, 9, 18, 4, 5, 0, time.UTC)

func TestStem(t *testing.T) {
	tests := []struct {
		name    string
		summary core.FlightSummary
		want    string
	}{
		{"plain", core.FlightSummary{MissionID: "harbor-3", AttemptID: "0123456789abcdef", StartedAt: t0}, "harbor-3_20240309_180405_01234567"},
		{"unsafe chars", core.FlightSummary{MissionID: "Red Bay: night", AttemptID: "ab", StartedAt: t0}, "Red_Bay__night_20240309_180405_ab"},
		{"empty mission", core.FlightSummary{AttemptID: "abcdefgh", StartedAt: t0}, "mission_20240309_180405_abcdefgh"},
		{"local time", core.FlightSummary{MissionID: "m", AttemptID: "a", StartedAt: t0.In(time.FixedZone("X", 3600))}, "m_20240309_180405_a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stem(tt.summary))
		})
	}
}

func TestTrimSuffix(t *testing.T) {
	for _, in := range []string{
		"dir/a_b", "dir/a_b.mission.txt", "dir/a_b.camera.json", "dir/a_b.summary.json", "dir/a_b.summary.json.gz",
	} {
		assert.Equal(t, "dir/a_b", TrimSuffix(in), in)
	}
}

func TestSaveWritesThreeFiles(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "gzip"}[compress], func(t *testing.T) {
			b := newTestBackend(t, compress)
			a := newAttempt(t, "5f0c8a9e-aaaa-4bbb-8ccc-000000000001", "harbor-3", t0)
			require.NoError(t, b.SaveAttempt(context.Background(), a))

			entries, err := os.ReadDir(b.cfg.OutputDir)
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}

			suffix := ""
			if compress {
				suffix = ".gz"
			}
			stem := "harbor-3_20240309_180405_5f0c8a9e"
			assert.ElementsMatch(t, []string{
				stem + ".camera.json" + suffix,
				stem + ".mission.txt" + suffix,
				stem + ".summary.json" + suffix,
			}, names)

			if !compress {
				raw, err := os.ReadFile(filepath.Join(b.cfg.OutputDir, stem+".mission.txt"))
				require.NoError(t, err)
				assert.Equal(t, missionText, string(raw))
			}
		})
	}
}

func TestLoadAttempt(t *testing.T) {
	for _, compress := range []bool{false, true} {
		b := newTestBackend(t, compress)
		ctx := context.Background()
		a := newAttempt(t, "5f0c8a9e-aaaa-4bbb-8ccc-000000000001", "harbor-3", t0)
		require.NoError(t, b.SaveAttempt(ctx, a))

		got, err := b.LoadAttempt(ctx, a.Summary.AttemptID)
		require.NoError(t, err)
		assert.Equal(t, a.Summary, got.Summary)
		assert.Equal(t, missionText, got.Log.String())
		assert.False(t, got.Log.Recording())
		assert.Equal(t, a.Track.Events(), got.Track.Events())
	}
}

func TestLoadAttempt_SharedPrefix(t *testing.T) {
	b := newTestBackend(t, false)
	ctx := context.Background()

	first := newAttempt(t, "5f0c8a9e-0000-4000-8000-000000000001", "harbor-3", t0)
	second := newAttempt(t, "5f0c8a9e-0000-4000-8000-000000000002", "harbor-3", t0.Add(time.Second))
	require.NoError(t, b.SaveAttempt(ctx, first))
	require.NoError(t, b.SaveAttempt(ctx, second))

	got, err := b.LoadAttempt(ctx, second.Summary.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, second.Summary.AttemptID, got.Summary.AttemptID)

	_, err = b.LoadAttempt(ctx, "5f0c8a9e-0000-4000-8000-000000000003")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListAttempts(t *testing.T) {
	b := newTestBackend(t, false)
	ctx := context.Background()

	require.NoError(t, b.SaveAttempt(ctx, newAttempt(t, "cccccccc-1", "harbor-3", t0.Add(2*time.Hour))))
	require.NoError(t, b.SaveAttempt(ctx, newAttempt(t, "aaaaaaaa-1", "harbor-3", t0)))
	require.NoError(t, b.SaveAttempt(ctx, newAttempt(t, "bbbbbbbb-1", "harbor-3_b", t0.Add(time.Hour))))
	// a stray file is ignored
	require.NoError(t, os.WriteFile(filepath.Join(b.cfg.OutputDir, "junk.summary.json"), []byte("{"), 0644))

	list, err := b.ListAttempts(ctx, "harbor-3")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "aaaaaaaa-1", list[0].AttemptID)
	assert.Equal(t, "cccccccc-1", list[1].AttemptID)

	all, err := b.ListAttempts(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "bbbbbbbb-1", all[1].AttemptID)
}

func TestLoadStem_MissingCamera(t *testing.T) {
	b := newTestBackend(t, false)
	a := newAttempt(t, "dddddddd-1", "ridge", t0)
	require.NoError(t, b.SaveAttempt(context.Background(), a))

	stem := filepath.Join(b.cfg.OutputDir, Stem(a.Summary))
	require.NoError(t, os.Remove(stem+CameraSuffix))

	got, err := LoadStem(stem, nil)
	require.NoError(t, err)
	assert.Zero(t, got.Track.Len())
}

func TestLoadStem_Errors(t *testing.T) {
	b := newTestBackend(t, false)
	a := newAttempt(t, "eeeeeeee-1", "ridge", t0)
	require.NoError(t, b.SaveAttempt(context.Background(), a))
	stem := filepath.Join(b.cfg.OutputDir, Stem(a.Summary))

	t.Run("bad camera", func(t *testing.T) {
		require.NoError(t, os.WriteFile(stem+CameraSuffix, []byte(`{"version":9}`), 0644))
		_, err := LoadStem(stem, nil)
		assert.Error(t, err)
	})

	t.Run("missing log", func(t *testing.T) {
		require.NoError(t, os.Remove(stem+MissionSuffix))
		_, err := LoadStem(stem, nil)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing summary", func(t *testing.T) {
		_, err := LoadStem(stem+"x", nil)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestSaveAttempt_NoTempFilesLeft(t *testing.T) {
	b := newTestBackend(t, true)
	require.NoError(t, b.SaveAttempt(context.Background(), newAttempt(t, "ffffffff-1", "m", t0)))

	entries, err := os.ReadDir(b.cfg.OutputDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), e.Name())
	}
}

func TestFiles(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "gzip"}[compress], func(t *testing.T) {
			b := newTestBackend(t, compress)
			a := newAttempt(t, "5f0c8a9e-aaaa-4bbb-8ccc-000000000001", "harbor-3", t0)
			require.NoError(t, b.SaveAttempt(context.Background(), a))

			suffix := ""
			if compress {
				suffix = ".gz"
			}
			stem := filepath.Join(b.cfg.OutputDir, "harbor-3_20240309_180405_5f0c8a9e")
			assert.Equal(t, []string{
				stem + MissionSuffix + suffix,
				stem + CameraSuffix + suffix,
				stem + SummarySuffix + suffix,
			}, Files(stem))
		})
	}

	assert.Empty(t, Files(filepath.Join(t.TempDir(), "nothing")))
}
