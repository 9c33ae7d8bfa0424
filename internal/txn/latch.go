package txn

import "context"

// LatchState is the stale-read suppression state of a consumer.
type LatchState int

const (
	// LatchIdle passes every snapshot straight through.
	LatchIdle LatchState = iota
	// LatchBuffering keeps only the newest snapshot until Resume.
	LatchBuffering
)

func (s LatchState) String() string {
	if s == LatchBuffering {
		return "buffering"
	}
	return "idle"
}

// Latch holds back snapshots while a structural batch is in flight so that a
// consumer never renders a half-applied tree. It is not safe for concurrent
// use.
type Latch[T any] struct {
	state   LatchState
	pending T
	have    bool
}

func (l *Latch[T]) State() LatchState { return l.state }

// Suspend starts buffering.
func (l *Latch[T]) Suspend() { l.state = LatchBuffering }

// Offer returns v when idle. While buffering it keeps v as the latest
// snapshot and returns false.
func (l *Latch[T]) Offer(v T) (T, bool) {
	if l.state == LatchBuffering {
		l.pending, l.have = v, true
		var zero T
		return zero, false
	}
	return v, true
}

// Resume stops buffering and returns the newest held snapshot, if any.
func (l *Latch[T]) Resume() (T, bool) {
	l.state = LatchIdle
	v, ok := l.pending, l.have
	var zero T
	l.pending, l.have = zero, false
	return v, ok
}

// Follow relays snapshots from in, latching them while clock is raised. When
// the clock drops, the newest snapshot is flushed. The output channel keeps
// only the latest undelivered snapshot and is closed when in closes or ctx is
// done.
func Follow[T any](ctx context.Context, clock *Clock, in <-chan T) <-chan T {
	out := make(chan T, 1)
	deliver := func(v T) {
		select {
		case <-out:
		default:
		}
		out <- v
	}

	go func() {
		defer close(out)
		var latch Latch[T]
		for {
			raised, changed := clock.Watch()
			if raised && latch.State() == LatchIdle {
				latch.Suspend()
			}
			if !raised && latch.State() == LatchBuffering {
				// The settled snapshot is queued before the clock drops.
				closed := false
				select {
				case v, ok := <-in:
					if ok {
						latch.Offer(v)
					} else {
						closed = true
					}
				default:
				}
				if v, ok := latch.Resume(); ok {
					deliver(v)
				}
				if closed {
					return
				}
			}

			select {
			case v, ok := <-in:
				if !ok {
					if v, ok := latch.Resume(); ok {
						deliver(v)
					}
					return
				}
				if clock.Raised() && latch.State() == LatchIdle {
					latch.Suspend()
				}
				if v, ok := latch.Offer(v); ok {
					deliver(v)
				}
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
