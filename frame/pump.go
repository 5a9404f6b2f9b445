package frame

import (
	"context"
	"time"
)

// Pump pulls frames from src and hands them to sink until ctx is done or
// a finite source ends. Sources implementing Notifier are drained whenever
// they signal; others are polled every interval.
//
// Pump returns nil when the source ended and ctx.Err() on cancellation.
func Pump(ctx context.Context, src Source, sink Sink, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second / 60
	}
	var ready <-chan struct{}
	if n, ok := src.(Notifier); ok {
		ready = n.Ready()
	}
	var tick <-chan time.Time
	if ready == nil {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
		case <-tick:
		}
		for {
			f, ok := src.Next()
			if !ok {
				break
			}
			sink.PresentFrame(f)
			if ready == nil {
				// Polled sources deliver one frame per interval.
				break
			}
		}
		if fin, ok := src.(Finite); ok && fin.Ended() {
			return nil
		}
	}
}
