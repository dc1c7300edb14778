package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/outreach-core/internal/pkg/distlock"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// Duty names, also used as lock keys and in the ops API.
const (
	DutyJobs       = "jobs"
	DutyDailyReset = "daily_reset"
	DutyScheduler  = "scheduler"
	DutyWarmup     = "warmup"
	DutyAutoPause  = "autopause"
	DutyRecovery   = "recovery"
)

var ErrUnknownDuty = errors.New("unknown duty")

// Duty is one periodic task of the driver.
type Duty struct {
	Name string
	// Every is the cadence in base ticks. Values < 1 mean every tick.
	Every int
	// Leader duties run on one instance at a time, under a distributed lock.
	Leader bool
	Run    func(ctx context.Context) error
}

// LockFactory returns the lock for a leader duty. period is the duty's
// cadence; the lock should outlive it by a grace margin so the holder can
// renew on its next run before peers see the lease lapse.
type LockFactory func(key string, period time.Duration) distlock.DistLock

// Driver runs the periodic duties. Tick and RunCycle drive it from outside
// (cron, tests); Start runs each duty on its own ticker until Stop.
//
// A leader duty is guarded by a lease the driver keeps between runs, so only
// the instance holding it performs the duty in an interval. Stop gives the
// leases up.
type Driver struct {
	tick    time.Duration
	duties  []Duty
	newLock LockFactory

	iteration atomic.Uint64

	leaseMu sync.Mutex
	leases  map[string]distlock.DistLock

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDriver creates a driver. A nil newLock runs leader duties unguarded.
func NewDriver(tick time.Duration, newLock LockFactory, duties ...Duty) *Driver {
	if tick <= 0 {
		tick = 5 * time.Second
	}
	for i := range duties {
		if duties[i].Every < 1 {
			duties[i].Every = 1
		}
	}
	return &Driver{tick: tick, duties: duties, newLock: newLock, leases: map[string]distlock.DistLock{}}
}

// Tick runs one iteration of the combined loop: the counter advances and
// every duty whose cadence divides it runs, in registration order.
func (d *Driver) Tick(ctx context.Context) {
	n := d.iteration.Add(1)
	for _, duty := range d.duties {
		if ctx.Err() != nil {
			return
		}
		if n%uint64(duty.Every) == 0 {
			d.runDuty(ctx, duty)
		}
	}
}

// RunCycle runs every duty once regardless of cadence.
func (d *Driver) RunCycle(ctx context.Context) {
	for _, duty := range d.duties {
		if ctx.Err() != nil {
			return
		}
		d.runDuty(ctx, duty)
	}
}

// RunDuty runs a single duty by name and reports whether it ran (a leader
// duty held elsewhere is skipped).
func (d *Driver) RunDuty(ctx context.Context, name string) (bool, error) {
	for _, duty := range d.duties {
		if duty.Name == name {
			return d.runDuty(ctx, duty)
		}
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownDuty, name)
}

// Duties lists the registered duty names.
func (d *Driver) Duties() []string {
	names := make([]string, len(d.duties))
	for i, duty := range d.duties {
		names[i] = duty.Name
	}
	return names
}

func (d *Driver) runDuty(ctx context.Context, duty Duty) (ran bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ran, err = true, fmt.Errorf("duty %s panicked: %v", duty.Name, r)
		}
		switch {
		case err != nil:
			dutyRuns.WithLabelValues(duty.Name, "error").Inc()
			logger.Error("duty failed", "duty", duty.Name, "error", err)
		case !ran:
			dutyRuns.WithLabelValues(duty.Name, "skipped").Inc()
		default:
			dutyRuns.WithLabelValues(duty.Name, "ok").Inc()
		}
	}()

	if !duty.Leader || d.newLock == nil {
		return true, duty.Run(ctx)
	}
	return distlock.WithLease(ctx, d.lease(duty), duty.Run)
}

// lease returns the duty's lock, created once so renewals reuse the same
// owner token (or advisory-lock session).
func (d *Driver) lease(duty Duty) distlock.DistLock {
	d.leaseMu.Lock()
	defer d.leaseMu.Unlock()
	l, ok := d.leases[duty.Name]
	if !ok {
		l = d.newLock("outreach:duty:"+duty.Name, d.tick*time.Duration(duty.Every))
		d.leases[duty.Name] = l
	}
	return l
}

func (d *Driver) releaseLeases() {
	d.leaseMu.Lock()
	leases := d.leases
	d.leases = map[string]distlock.DistLock{}
	d.leaseMu.Unlock()

	for name, l := range leases {
		if err := distlock.Release(l); err != nil {
			logger.Warn("release duty lease", "duty", name, "error", err)
		}
	}
}

// Start launches one goroutine per duty, each with a ticker of
// tick × Every. It returns immediately.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)

	log.Printf("[Driver] starting %d duties (tick=%s)", len(d.duties), d.tick)
	for _, duty := range d.duties {
		d.wg.Add(1)
		go d.loop(ctx, duty)
	}
}

func (d *Driver) loop(ctx context.Context, duty Duty) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.tick * time.Duration(duty.Every))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runDuty(ctx, duty)
		}
	}
}

// StartLoop runs the single combined tick loop in one goroutine.
func (d *Driver) StartLoop(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)

	log.Printf("[Driver] starting combined loop (tick=%s)", d.tick)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.Tick(ctx)
			}
		}
	}()
}

// Stop cancels all duty goroutines, waits for in-flight runs to finish and
// releases held leases so another instance can take over without waiting
// for them to expire.
func (d *Driver) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		d.wg.Wait()
		log.Println("[Driver] stopped")
	}
	d.releaseLeases()
}

// Components are the services the standard duties drive.
type Components struct {
	Processor *JobProcessor
	Scheduler *CampaignScheduler
	Warmup    *WarmupService
	AutoPause *AutoPauseMonitor
	Recovery  *JobRecovery
}

// Cadence is the number of base ticks between runs of each duty. Jobs and
// the daily reset check run every tick.
type Cadence struct {
	Scheduler int
	Warmup    int
	AutoPause int
	Recovery  int
}

// StandardDuties builds the duty set of the worker process.
func StandardDuties(c Components, cad Cadence) []Duty {
	return []Duty{
		{Name: DutyJobs, Every: 1, Run: func(ctx context.Context) error {
			n, err := c.Processor.ProcessBatch(ctx)
			if n > 0 {
				logger.Debug("processed jobs", "count", n)
			}
			return err
		}},
		{Name: DutyDailyReset, Every: 1, Leader: true, Run: func(ctx context.Context) error {
			_, err := c.Warmup.ResetDailyCounters(ctx)
			return err
		}},
		{Name: DutyScheduler, Every: cad.Scheduler, Leader: true, Run: func(ctx context.Context) error {
			_, err := c.Scheduler.ProcessActiveCampaigns(ctx)
			return err
		}},
		{Name: DutyWarmup, Every: cad.Warmup, Leader: true, Run: func(ctx context.Context) error {
			rep, err := c.Warmup.Run(ctx)
			if err == nil && (rep.Ramped+rep.Graduated+rep.Paused) > 0 {
				logger.Info("warmup cycle", "ramped", rep.Ramped, "graduated", rep.Graduated,
					"paused", rep.Paused, "warned", rep.Warned, "warmup_queued", rep.WarmupQueued)
			}
			return err
		}},
		{Name: DutyAutoPause, Every: cad.AutoPause, Leader: true, Run: func(ctx context.Context) error {
			log.Println("[AutoPause] running health check")
			_, err := c.AutoPause.RunHealthCheckJob(ctx)
			return err
		}},
		{Name: DutyRecovery, Every: cad.Recovery, Leader: true, Run: func(ctx context.Context) error {
			_, err := c.Recovery.Run(ctx)
			return err
		}},
	}
}
