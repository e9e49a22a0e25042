package scheduler

import (
	"context"
	"time"

	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
)

// IntervalScheduler runs a task on a fixed interval until the context is
// cancelled. Each loop owns its own scheduler so the breaker monitor, the
// decision cycle and the reconciler never block each other.
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewIntervalScheduler(ctx context.Context, name string, interval time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Name:     name,
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks until the context is done. Callers run it in a goroutine.
func (s *IntervalScheduler) Start(task func()) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("scheduler %s: task is nil, exit", s.Name)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler %s: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("scheduler %s: started interval=%s run_immediately=%v",
		s.Name, s.Interval, s.RunImmediately)

	if s.RunImmediately {
		task()
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("scheduler %s: ctx done, exit", s.Name)
			return
		case <-ticker.C:
		}
		task()
	}
}
