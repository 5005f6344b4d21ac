package scan

import (
	"sync"
	"time"
)

// progress tracks how much of the block range has been scanned and estimates
// the time remaining from the rate observed so far.
type progress struct {
	mu      sync.Mutex
	total   uint64
	done    uint64
	started time.Time
}

type progressSnapshot struct {
	Done      uint64
	Total     uint64
	Percent   float64
	Elapsed   time.Duration
	Remaining time.Duration
}

func newProgress(total uint64) *progress {
	return &progress{total: total, started: time.Now()}
}

// add records blocks more scanned blocks and returns the updated snapshot.
func (p *progress) add(blocks uint64) progressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += blocks
	if p.done > p.total {
		p.done = p.total
	}
	elapsed := time.Since(p.started)

	snap := progressSnapshot{
		Done:    p.done,
		Total:   p.total,
		Elapsed: elapsed,
	}
	if p.total > 0 {
		snap.Percent = float64(p.done) / float64(p.total) * 100
	}
	if p.done > 0 && p.done < p.total && elapsed > 0 {
		rate := float64(p.done) / elapsed.Seconds()
		snap.Remaining = time.Duration(float64(p.total-p.done) / rate * float64(time.Second))
	}
	return snap
}
