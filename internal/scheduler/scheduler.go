// Package scheduler turns persisted schedules into fired sniping runs. A
// single goroutine owns a min-heap of next-fire instants and one timer;
// callers interact through mutex-guarded methods, so Reload, StopRun and
// RunningJobs are safe from any goroutine.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dcallahan11/resybot-open/internal/runner"
	"github.com/dcallahan11/resybot-open/internal/store"
)

// maxTimerWait caps a single timer wait. Longer delays are split by
// checkpoint wake-ups that recompute the next run from a fresh store read,
// so edits to far-future schedules take effect without waiting out the
// original delay.
const maxTimerWait = time.Hour

// Store is the persistence the scheduler consumes. *store.Repo implements
// it; tests substitute fakes.
type Store interface {
	ListSchedules(ctx context.Context) ([]store.Schedule, error)
	GetSchedule(ctx context.Context, id int64) (store.Schedule, error)
	DeleteSchedule(ctx context.Context, id int64) error
	GetTask(ctx context.Context, id int64) (store.Task, error)
	GetAccount(ctx context.Context, id int64) (store.Account, error)
	ListProxies(ctx context.Context) ([]store.Proxy, error)
}

// RunHandle is a launched run the scheduler can cancel and wait on.
type RunHandle interface {
	Cancel()
	Done() <-chan struct{}
	Result() runner.Result
}

// LaunchFunc starts a sniping run with a hard deadline.
type LaunchFunc func(ctx context.Context, task store.Task, accts runner.Accounts, proxies []string, timeout time.Duration) RunHandle

// Launch adapts *runner.Runner to LaunchFunc.
func Launch(r *runner.Runner) LaunchFunc {
	return func(ctx context.Context, task store.Task, accts runner.Accounts, proxies []string, timeout time.Duration) RunHandle {
		return r.Start(ctx, task, accts, proxies, timeout)
	}
}

// RunningJob describes one in-flight run. Ephemeral: it exists only between
// launch and completion and is never persisted.
type RunningJob struct {
	RunID      string
	ScheduleID int64
	TaskID     int64
	StartedAt  time.Time
	Duration   time.Duration
}

type runningJob struct {
	RunningJob
	handle RunHandle
}

type Scheduler struct {
	store  Store
	launch LaunchFunc
	log    zerolog.Logger
	loc    *time.Location
	now    func() time.Time

	mu      sync.Mutex
	entries fireHeap
	running map[int64]*runningJob  // by schedule id; at most one per schedule
	byRun   map[string]*runningJob // by run id

	wake       chan struct{}
	baseCtx    context.Context
	baseCancel context.CancelFunc
	started    bool
}

func New(st Store, launch LaunchFunc, log zerolog.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		store:   st,
		launch:  launch,
		log:     log,
		loc:     loc,
		now:     time.Now,
		running: map[int64]*runningJob{},
		byRun:   map[string]*runningJob{},
		wake:    make(chan struct{}, 1),
	}
}

// Start loads all schedules, arms their next fires, and starts the timer
// goroutine. Runs launched later are children of ctx, so cancelling it has
// the same effect as Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.baseCtx, s.baseCancel = context.WithCancel(ctx)
	s.armLocked(schedules)
	s.mu.Unlock()

	go s.loop()
	s.log.Info().Int("schedules", len(schedules)).Str("tz", s.loc.String()).Msg("scheduler started")
	return nil
}

// Reload drops every pending fire, re-reads the schedules, and re-arms.
// Call after schedules are mutated externally. In-flight runs are untouched.
func (s *Scheduler) Reload(ctx context.Context) error {
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = nil
	s.armLocked(schedules)
	s.mu.Unlock()

	s.poke()
	s.log.Info().Int("schedules", len(schedules)).Msg("schedules reloaded")
	return nil
}

// Stop cancels every pending timer and signals cancellation to every
// in-flight run. It does not wait for runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.entries = nil
	cancel := s.baseCancel
	jobs := make([]*runningJob, 0, len(s.byRun))
	for _, j := range s.byRun {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	cancel()
	for _, j := range jobs {
		j.handle.Cancel()
	}
	s.log.Info().Int("cancelled_runs", len(jobs)).Msg("scheduler stopped")
}

// RunningJobs snapshots the in-flight runs.
func (s *Scheduler) RunningJobs() []RunningJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunningJob, 0, len(s.byRun))
	for _, j := range s.byRun {
		out = append(out, j.RunningJob)
	}
	return out
}

// StopRun signals cancellation to one in-flight run. Returns whether the run
// existed.
func (s *Scheduler) StopRun(runID string) bool {
	s.mu.Lock()
	j, ok := s.byRun[runID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	j.handle.Cancel()
	return true
}

// armLocked computes and pushes next fires for every schedule that produces
// one. Malformed or disabled schedules are skipped silently.
func (s *Scheduler) armLocked(schedules []store.Schedule) {
	now := s.now()
	for _, sc := range schedules {
		at, ok := NextRun(sc, now, s.loc)
		if !ok {
			continue
		}
		s.pushLocked(sc.ID, at)
	}
}

func (s *Scheduler) pushLocked(scheduleID int64, at time.Time) {
	s.removeLocked(scheduleID)
	heap.Push(&s.entries, &entry{scheduleID: scheduleID, at: at})
}

func (s *Scheduler) removeLocked(scheduleID int64) {
	for i, e := range s.entries {
		if e.scheduleID == scheduleID {
			heap.Remove(&s.entries, i)
			return
		}
	}
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	for {
		s.mu.Lock()
		now := s.now()
		var due []int64
		for len(s.entries) > 0 && !s.entries[0].at.After(now) {
			e := heap.Pop(&s.entries).(*entry)
			due = append(due, e.scheduleID)
		}

		wait := maxTimerWait
		capped := false
		if len(s.entries) > 0 {
			wait, capped = timerWait(s.entries[0].at.Sub(now))
		}
		s.mu.Unlock()

		for _, id := range due {
			s.fire(id)
		}
		if len(due) > 0 {
			// firing may have armed something earlier than the computed wait
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-s.baseCtx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
			if capped {
				s.refresh()
			}
		}
	}
}

// timerWait clamps the delay until the next fire to the checkpoint cap. The
// capped flag tells the loop to re-read the schedule when the timer expires
// instead of firing.
func timerWait(until time.Duration) (time.Duration, bool) {
	switch {
	case until > maxTimerWait:
		return maxTimerWait, true
	case until > 0:
		return until, false
	default:
		return 0, false
	}
}

// refresh re-reads every pending schedule and recomputes its next fire.
// Runs at checkpoint wake-ups so disabled or edited schedules take effect
// mid-wait even without a Reload.
func (s *Scheduler) refresh() {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.entries))
	for _, e := range s.entries {
		ids = append(ids, e.scheduleID)
	}
	s.mu.Unlock()

	for _, id := range ids {
		sc, err := s.store.GetSchedule(s.baseCtx, id)

		s.mu.Lock()
		if err != nil {
			s.removeLocked(id)
			s.mu.Unlock()
			continue
		}
		at, ok := NextRun(sc, s.now(), s.loc)
		if !ok {
			s.removeLocked(id)
			s.mu.Unlock()
			continue
		}
		s.pushLocked(id, at)
		s.mu.Unlock()
	}
}

// fire runs the firing protocol for one due schedule: re-arm recurring kinds
// first, drop overlapping fires, resolve task and accounts, delete once
// schedules at launch time, then launch and register the run.
func (s *Scheduler) fire(scheduleID int64) {
	ctx := s.baseCtx

	sc, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		s.log.Debug().Int64("schedule_id", scheduleID).Err(err).Msg("schedule gone at fire time")
		return
	}
	if !sc.Enabled {
		return
	}

	// Arm the next occurrence before anything else so the following cycle
	// survives a long or crashed run.
	if sc.Kind != store.KindOnce {
		if at, ok := NextRun(sc, s.now(), s.loc); ok {
			s.mu.Lock()
			s.pushLocked(sc.ID, at)
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	_, overlapping := s.running[sc.ID]
	s.mu.Unlock()
	if overlapping {
		s.log.Debug().Int64("schedule_id", sc.ID).Msg("run still in flight, dropping fire")
		return
	}

	task, err := s.store.GetTask(ctx, sc.TaskID)
	if err != nil {
		s.log.Warn().Int64("schedule_id", sc.ID).Int64("task_id", sc.TaskID).Err(err).Msg("task resolution failed, dropping fire")
		return
	}
	primary, err := s.store.GetAccount(ctx, task.AccountID)
	if err != nil {
		s.log.Warn().Int64("task_id", task.ID).Int64("account_id", task.AccountID).Err(err).Msg("account resolution failed, dropping fire")
		return
	}
	accts := runner.Accounts{Primary: primary}
	if task.BackupAccountID != nil {
		if backup, err := s.store.GetAccount(ctx, *task.BackupAccountID); err == nil {
			accts.Backup = &backup
		} else {
			s.log.Warn().Int64("task_id", task.ID).Int64("account_id", *task.BackupAccountID).Msg("backup account missing, continuing without")
		}
	}

	var proxies []string
	if ps, err := s.store.ListProxies(ctx); err == nil {
		for _, p := range ps {
			proxies = append(proxies, p.URL)
		}
	} else {
		s.log.Warn().Err(err).Msg("proxy list unavailable, running direct")
	}

	// Removed at launch rather than completion: a hung run must not make a
	// once schedule look still pending.
	if sc.Kind == store.KindOnce {
		if err := s.store.DeleteSchedule(ctx, sc.ID); err != nil {
			s.log.Warn().Int64("schedule_id", sc.ID).Err(err).Msg("once schedule delete failed")
		}
	}

	runID := uuid.NewString()
	job := &runningJob{
		RunningJob: RunningJob{
			RunID:      runID,
			ScheduleID: sc.ID,
			TaskID:     task.ID,
			StartedAt:  s.now(),
			Duration:   sc.Duration(),
		},
	}

	s.mu.Lock()
	if _, exists := s.running[sc.ID]; exists {
		s.mu.Unlock()
		return
	}
	job.handle = s.launch(ctx, task, accts, proxies, sc.Duration())
	s.running[sc.ID] = job
	s.byRun[runID] = job
	s.mu.Unlock()

	s.log.Info().Str("run_id", runID).Int64("schedule_id", sc.ID).Int64("task_id", task.ID).
		Dur("deadline", sc.Duration()).Msg("run launched")

	go s.reap(job)
}

// reap removes the registry entry once the run completes.
func (s *Scheduler) reap(job *runningJob) {
	<-job.handle.Done()
	res := job.handle.Result()

	s.mu.Lock()
	if cur, ok := s.running[job.ScheduleID]; ok && cur == job {
		delete(s.running, job.ScheduleID)
	}
	delete(s.byRun, job.RunID)
	s.mu.Unlock()

	s.log.Info().Str("run_id", job.RunID).Int64("schedule_id", job.ScheduleID).
		Str("status", string(res.Status)).Msg("run finished")
}
