package diff

import "time"

// State is the lifecycle of one alignment sweep. Running is the only
// non-terminal state.
type State int

const (
	Running State = iota
	Completed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// StatusSink receives throttled progress from a running sweep. It is purely
// observational; implementations may render, log, or drop the calls.
type StatusSink interface {
	// Progress reports pos of total enumerated offsets.
	Progress(pos, total int)
	// Done fires after the final offset, only if Progress was ever shown.
	Done(elapsed time.Duration)
	// TimedOut fires once when the time budget is exhausted.
	TimedOut(elapsed time.Duration)
}

// Progress drives a long enumeration under a cooperative time budget.
// Advance must be called exactly once per enumerated offset, in enumeration
// order; cancellation is polled there and nowhere else, so the sweep can
// overrun the deadline by at most one comparison step.
type Progress struct {
	total   int
	pos     int
	timeout time.Duration
	delay   time.Duration
	sink    StatusSink
	state   State
	start   time.Time
	shown   bool
	now     func() time.Time
}

// NewProgress returns a Running tracker for total units. A timeout of 0
// disables cancellation. delay throttles the first status report; sink may
// be nil.
func NewProgress(total int, timeout, delay time.Duration, sink StatusSink) *Progress {
	p := &Progress{total: total, timeout: timeout, delay: delay, sink: sink, now: time.Now}
	p.start = p.now()
	return p
}

// State returns the current lifecycle state.
func (p *Progress) State() State { return p.state }

// Position returns how many units have been advanced so far.
func (p *Progress) Position() int { return p.pos }

// Advance consumes one unit. It returns false when the caller must stop
// iterating: either the budget ran out (state TimedOut) or Advance was
// called past a terminal state.
func (p *Progress) Advance() bool {
	if p.state != Running {
		return false
	}
	p.pos++
	elapsed := p.now().Sub(p.start)
	if p.timeout > 0 && elapsed > p.timeout {
		p.state = TimedOut
		if p.sink != nil {
			p.sink.TimedOut(elapsed)
		}
		return false
	}
	if p.pos >= p.total {
		p.state = Completed
		if p.sink != nil && p.shown {
			p.sink.Done(elapsed)
		}
		return true
	}
	if p.sink != nil && elapsed > p.delay {
		p.shown = true
		p.sink.Progress(p.pos, p.total)
	}
	return true
}
