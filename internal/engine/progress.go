package engine

import "time"

// Progress is a snapshot sent after every finished task. ETA extrapolates
// the mean time per finished task over the remaining ones.
type Progress struct {
	Completed int
	Failed    int
	Skipped   int
	Total     int
	Elapsed   time.Duration
	ETA       time.Duration
}

// Done returns the number of tasks that have finished in any state.
func (p Progress) Done() int { return p.Completed + p.Failed + p.Skipped }

type collector struct {
	start    time.Time
	workers  int
	progress chan<- Progress
	outcomes []TaskOutcome
	counts   Counts
}

func newCollector(total, workers int, progress chan<- Progress) *collector {
	return &collector{
		start:    time.Now(),
		workers:  workers,
		progress: progress,
		outcomes: make([]TaskOutcome, 0, total),
		counts:   Counts{Total: total},
	}
}

func (c *collector) add(o TaskOutcome) {
	c.outcomes = append(c.outcomes, o)
	switch o.Status {
	case StatusCompleted:
		c.counts.Completed++
	case StatusFailed:
		c.counts.Failed++
	case StatusSkipped:
		c.counts.Skipped++
	case StatusCancelled:
		c.counts.Cancelled++
		return
	}
	c.emit()
}

func (c *collector) emit() {
	if c.progress == nil {
		return
	}
	p := Progress{
		Completed: c.counts.Completed,
		Failed:    c.counts.Failed,
		Skipped:   c.counts.Skipped,
		Total:     c.counts.Total,
		Elapsed:   time.Since(c.start),
	}
	if done := p.Done(); done > 0 {
		p.ETA = p.Elapsed / time.Duration(done) * time.Duration(p.Total-done)
	}
	select {
	case c.progress <- p:
	default:
	}
}

func (c *collector) outcome() Outcome {
	return Outcome{
		Outcomes: c.outcomes,
		Counts:   c.counts,
		Workers:  c.workers,
		Elapsed:  time.Since(c.start),
	}
}
