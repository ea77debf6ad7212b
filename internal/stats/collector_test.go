package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	const goroutines = 50
	const opsPerGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				c.AddFilesMounted(1)
				c.AddSymlinksCloned(1)
				c.AddMirroredFiles(1)
				c.AddMirroredDirs(1)
				c.AddMirroredSymlinks(1)
				c.AddShadowsCreated(1)
				c.AddWhiteouts(1)
				c.AddSkipped(1)
				c.AddFailed(1)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	expected := int64(goroutines * opsPerGoroutine)
	assert.Equal(t, expected, s.FilesMounted)
	assert.Equal(t, expected, s.SymlinksCloned)
	assert.Equal(t, expected, s.MirroredFiles)
	assert.Equal(t, expected, s.MirroredDirs)
	assert.Equal(t, expected, s.MirroredSymlinks)
	assert.Equal(t, expected, s.ShadowsCreated)
	assert.Equal(t, expected, s.Whiteouts)
	assert.Equal(t, expected, s.Skipped)
	assert.Equal(t, expected, s.Failed)
	assert.Equal(t, 3*expected, s.Mirrored())
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{
		FilesMounted:     10,
		SymlinksCloned:   2,
		MirroredFiles:    5,
		MirroredDirs:     2,
		MirroredSymlinks: 1,
		ShadowsCreated:   3,
		Whiteouts:        1,
		Skipped:          1,
		Failed:           0,
	}
	expected := "files=10 symlinks=2 mirrored=8 shadows=3 whiteouts=1 skipped=1 failed=0"
	assert.Equal(t, expected, s.String())
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.AddFilesMounted(1)
		c.AddFailed(1)
	})
	assert.Equal(t, Snapshot{}, c.Snapshot())
}

func TestElapsed(t *testing.T) {
	c := NewCollector()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, c.Elapsed(), 5*time.Millisecond)
	assert.GreaterOrEqual(t, c.Snapshot().Elapsed, 5*time.Millisecond)
}
