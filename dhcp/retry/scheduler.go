// Package retry drives request/response exchanges over an unreliable
// datagram transport: it retransmits with exponential backoff until an
// acceptable reply arrives or the overall deadline passes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("retry: timed out")
	// ErrInboundClosed is returned when the reply channel is closed, which
	// means the transport went away.
	ErrInboundClosed = errors.New("retry: inbound channel closed")
)

// TimeoutError is returned by Exchange when the overall timeout elapses.
type TimeoutError struct {
	Sent int
	// Rejected counts the datagrams that arrived but were not accepted.
	Rejected int
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.NoResponse() {
		return fmt.Sprintf("no response within %v after %d transmissions", e.Timeout, e.Sent)
	}
	return fmt.Sprintf("no acceptable response within %v after %d transmissions, %d rejected", e.Timeout, e.Sent, e.Rejected)
}

// NoResponse reports whether nothing at all arrived during the exchange.
func (e *TimeoutError) NoResponse() bool {
	return e.Rejected == 0
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Policy describes one exchange. The first retransmission happens after
// InitialInterval, each following one after twice the previous interval
// up to MaxInterval, randomized by +/- Jitter.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Jitter          float64
	Timeout         time.Duration
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	b.Reset()
	return b
}

// Scheduler runs exchanges and waits against a Clock.
type Scheduler struct {
	clock Clock
}

func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{clock: clock}
}

func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Exchange calls send, then waits for a datagram on inbound that accept
// approves. Rejected datagrams do not restart the retransmission
// schedule. Exchange returns the number of transmissions together with
// nil on success, the error of send, ctx.Err(), ErrInboundClosed or a
// *TimeoutError.
func (s *Scheduler) Exchange(ctx context.Context, p Policy, send func() error, inbound <-chan []byte, accept func([]byte) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	overall := s.clock.NewTimer(p.Timeout)
	defer overall.Stop()

	b := p.backOff()
	sent, rejected := 0, 0

	for {
		if err := send(); err != nil {
			return sent, err
		}
		sent++

		interval := b.NextBackOff()
		if interval == backoff.Stop || interval > p.Timeout {
			interval = p.Timeout
		}
		retransmit := s.clock.NewTimer(interval)

		done, err := func() (bool, error) {
			defer retransmit.Stop()
			for {
				select {
				case <-ctx.Done():
					return true, ctx.Err()
				case <-overall.C():
					return true, &TimeoutError{Sent: sent, Rejected: rejected, Timeout: p.Timeout}
				case <-retransmit.C():
					return false, nil
				case datagram, ok := <-inbound:
					if !ok {
						return true, ErrInboundClosed
					}
					if accept(datagram) {
						return true, nil
					}
					rejected++
				}
			}
		}()
		if done {
			return sent, err
		}
	}
}

// Sleep blocks for d or until ctx is done.
func (s *Scheduler) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := s.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
