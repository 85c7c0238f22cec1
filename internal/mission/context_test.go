package mission

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Empty(t *testing.T) {
	ctx := NewContext()

	assert.Empty(t, ctx.MissionID())
	assert.Empty(t, ctx.AttemptID())
	assert.Empty(t, ctx.LogAttrs())
}

func TestContext_SetAndClear(t *testing.T) {
	ctx := NewContext()
	ctx.SetAttempt("harbor-3", "a1")

	assert.Equal(t, "harbor-3", ctx.MissionID())
	assert.Equal(t, "a1", ctx.AttemptID())
	assert.Equal(t, []slog.Attr{
		slog.String("missionId", "harbor-3"),
		slog.String("attemptId", "a1"),
	}, ctx.LogAttrs())

	ctx.ClearAttempt()
	assert.Equal(t, "harbor-3", ctx.MissionID())
	assert.Empty(t, ctx.AttemptID())
	assert.Equal(t, []slog.Attr{slog.String("missionId", "harbor-3")}, ctx.LogAttrs())
}

func TestContext_ThreadSafe(t *testing.T) {
	ctx := NewContext()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx.SetAttempt("harbor-3", "a")
		}()
		go func() {
			defer wg.Done()
			_ = ctx.LogAttrs()
		}()
	}
	wg.Wait()

	assert.Equal(t, "a", ctx.AttemptID())
}
