package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// Sweeper is implemented by Limiter.
type Sweeper interface {
	Sweep() int
	Len() int
}

// Janitor periodically sweeps full buckets out of a limiter so that memory
// tracks the set of recently active keys.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
}

// NewJanitor returns a stopped janitor.
func NewJanitor(s Sweeper, interval time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{sweeper: s, interval: interval, logger: logger}
}

// Start launches the sweep loop. Starting a running janitor does nothing.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done != nil || j.interval <= 0 {
		return
	}
	j.done = make(chan struct{})
	j.stopped = make(chan struct{})
	go j.run(j.done, j.stopped)
}

// Stop ends the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.mu.Lock()
	done, stopped := j.done, j.stopped
	j.done, j.stopped = nil, nil
	j.mu.Unlock()
	if done == nil {
		return
	}
	close(done)
	<-stopped
}

func (j *Janitor) run(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			removed := j.sweeper.Sweep()
			if removed > 0 {
				j.logger.Debug("Swept idle rate limit buckets",
					"removed", removed,
					"remaining", j.sweeper.Len(),
				)
			}
		}
	}
}
