package app

import (
	"fmt"
	"sync"
	"time"
)

// AdmissionConfig bounds task submissions.
type AdmissionConfig struct {
	RateLimit     int
	RateWindow    time.Duration
	MaxConcurrent int
	Now           func() time.Time
}

// AdmissionController is the process-wide gate in front of task execution.
// The sliding submission log and the active-task count live behind one
// mutex, so concurrent submissions can never overshoot either ceiling.
// Rejected submissions are not recorded.
type AdmissionController struct {
	mu            sync.Mutex
	limit         int
	window        time.Duration
	maxConcurrent int
	now           func() time.Time

	admitted []time.Time
	active   int
}

// NewAdmissionController creates a controller. A non-positive limit disables
// that ceiling.
func NewAdmissionController(cfg AdmissionConfig) *AdmissionController {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &AdmissionController{
		limit:         cfg.RateLimit,
		window:        cfg.RateWindow,
		maxConcurrent: cfg.MaxConcurrent,
		now:           cfg.Now,
	}
}

// Admit reserves an execution slot. The returned release frees it and is
// safe to call more than once.
func (a *AdmissionController) Admit() (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.evict(now)
	if a.limit > 0 && len(a.admitted) >= a.limit {
		retryIn := a.admitted[0].Add(a.window).Sub(now)
		return nil, fmt.Errorf("%w: %d submissions in the last %s, retry in %s",
			ErrRateLimited, len(a.admitted), a.window, retryIn.Round(time.Second))
	}
	if a.maxConcurrent > 0 && a.active >= a.maxConcurrent {
		return nil, fmt.Errorf("%w: %d tasks already active", ErrTooManyConcurrentTasks, a.active)
	}

	a.admitted = append(a.admitted, now)
	a.active++

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			a.active--
			a.mu.Unlock()
		})
	}, nil
}

// evict drops log entries that fell out of the trailing window.
func (a *AdmissionController) evict(now time.Time) {
	cutoff := now.Add(-a.window)
	drop := 0
	for drop < len(a.admitted) && !a.admitted[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		a.admitted = append(a.admitted[:0], a.admitted[drop:]...)
	}
}

// Snapshot reports the current window count and active tasks.
func (a *AdmissionController) Snapshot() (inWindow, active int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evict(a.now())
	return len(a.admitted), a.active
}
