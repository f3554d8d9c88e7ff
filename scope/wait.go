package scope

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/pagelem/remote"
)

const (
	waitFirstDelay = 50 * time.Millisecond
	waitMaxDelay   = 800 * time.Millisecond
)

// WaitReady polls the readiness conditions of the scope class until all of
// them return true, or the named timeout expires.
func (s *Instance) WaitReady(ctx context.Context, ev remote.Evaluator, timeout string) error {
	if s.Class == nil {
		return nil
	}
	conds := s.Class.Waits()
	if len(conds) == 0 {
		return nil
	}
	limit := s.Timeout(timeout, s.Timeout(TimeoutMedium, 20*time.Second))
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	delay := waitFirstDelay
	for attempt := 1; ; attempt++ {
		pending, err := firstPending(ctx, ev, conds)
		if err != nil {
			return fmt.Errorf("scope: wait %s: %w", s.Class.Name, err)
		}
		if pending < 0 {
			s.logger.Debug("scope: page ready", "class", s.Class.Name, "attempts", attempt)
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("scope: wait %s: condition %d not met after %s: %w",
				s.Class.Name, pending, limit, ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, waitMaxDelay)
	}
}

// firstPending returns the index of the first condition not yet true, or
// -1 when all hold.
func firstPending(ctx context.Context, ev remote.Evaluator, conds []string) (int, error) {
	for i, c := range conds {
		v, err := ev.Eval(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return i, nil
			}
			return 0, err
		}
		if ok, _ := v.(bool); !ok {
			return i, nil
		}
	}
	return -1, nil
}
