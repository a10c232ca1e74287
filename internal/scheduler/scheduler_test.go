package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/texbot/internal/workspace"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *fakePruner) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 3, p.err
}

func (p *fakePruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestSchedulePruneRejectsZeroInterval(t *testing.T) {
	s := newScheduler(t)
	_, err := s.SchedulePrune(&fakePruner{}, 0, time.Hour)
	require.Error(t, err)
}

func TestSchedulePruneRunsImmediately(t *testing.T) {
	s := newScheduler(t)
	p := &fakePruner{}

	id, err := s.SchedulePrune(p, time.Hour, 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	s.Start()
	require.Eventually(t, func() bool { return p.calls() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestPruneUsesRetentionCutoff(t *testing.T) {
	s := newScheduler(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	p := &fakePruner{}

	s.prune(p, 48*time.Hour)
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, now.Add(-48*time.Hour), p.cutoffs[0])

	p.err = errors.New("locked")
	s.prune(p, time.Hour) // logged, not fatal
	assert.Equal(t, 2, p.calls())
}

func TestSweepRemovesOnlyStaleWorkspaces(t *testing.T) {
	base := t.TempDir()
	old := filepath.Join(base, workspace.Prefix+"old")
	fresh := filepath.Join(base, workspace.Prefix+"fresh")
	other := filepath.Join(base, "unrelated")
	for _, d := range []string{old, fresh, other} {
		require.NoError(t, os.Mkdir(d, 0o750))
	}
	past := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	s := newScheduler(t)
	s.sweep(base, time.Hour)

	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}
