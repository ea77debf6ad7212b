package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks mount run statistics using lock-free atomic counters.
// A nil *Collector is valid and discards every update.
type Collector struct {
	filesMounted     atomic.Int64
	symlinksCloned   atomic.Int64
	mirroredFiles    atomic.Int64
	mirroredDirs     atomic.Int64
	mirroredSymlinks atomic.Int64
	shadowsCreated   atomic.Int64
	whiteouts        atomic.Int64
	skipped          atomic.Int64
	failed           atomic.Int64
	startTime        time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesMounted     int64
	SymlinksCloned   int64
	MirroredFiles    int64
	MirroredDirs     int64
	MirroredSymlinks int64
	ShadowsCreated   int64
	Whiteouts        int64
	Skipped          int64
	Failed           int64
	Elapsed          time.Duration
}

func (c *Collector) AddFilesMounted(n int64)     { c.add(&c.filesMounted, n) }
func (c *Collector) AddSymlinksCloned(n int64)   { c.add(&c.symlinksCloned, n) }
func (c *Collector) AddMirroredFiles(n int64)    { c.add(&c.mirroredFiles, n) }
func (c *Collector) AddMirroredDirs(n int64)     { c.add(&c.mirroredDirs, n) }
func (c *Collector) AddMirroredSymlinks(n int64) { c.add(&c.mirroredSymlinks, n) }
func (c *Collector) AddShadowsCreated(n int64)   { c.add(&c.shadowsCreated, n) }
func (c *Collector) AddWhiteouts(n int64)        { c.add(&c.whiteouts, n) }
func (c *Collector) AddSkipped(n int64)          { c.add(&c.skipped, n) }
func (c *Collector) AddFailed(n int64)           { c.add(&c.failed, n) }

func (c *Collector) add(v *atomic.Int64, n int64) {
	if c == nil {
		return
	}
	v.Add(n)
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		FilesMounted:     c.filesMounted.Load(),
		SymlinksCloned:   c.symlinksCloned.Load(),
		MirroredFiles:    c.mirroredFiles.Load(),
		MirroredDirs:     c.mirroredDirs.Load(),
		MirroredSymlinks: c.mirroredSymlinks.Load(),
		ShadowsCreated:   c.shadowsCreated.Load(),
		Whiteouts:        c.whiteouts.Load(),
		Skipped:          c.skipped.Load(),
		Failed:           c.failed.Load(),
		Elapsed:          c.Elapsed(),
	}
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// Mirrored returns the total number of mirrored entries.
func (s Snapshot) Mirrored() int64 {
	return s.MirroredFiles + s.MirroredDirs + s.MirroredSymlinks
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"files=%d symlinks=%d mirrored=%d shadows=%d whiteouts=%d skipped=%d failed=%d",
		s.FilesMounted, s.SymlinksCloned, s.Mirrored(), s.ShadowsCreated,
		s.Whiteouts, s.Skipped, s.Failed,
	)
}
