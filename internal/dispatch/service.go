package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
)

var (
	ErrStopped   = errors.New("dispatch service stopped")
	ErrQueueFull = errors.New("dispatch queue full")
)

type ServiceConfig struct {
	Workers   int
	QueueSize int
	StatusMax int
	StatusTTL time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.StatusMax <= 0 {
		c.StatusMax = defaultStatusMax
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = defaultStatusTTL
	}
	return c
}

// JobStatus is a snapshot of an asynchronous job.
type JobStatus struct {
	ID     string
	Name   string
	Result Result

	CreatedAt time.Time
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
}

func (s JobStatus) Done() bool { return !s.DoneAt.IsZero() }

type job struct {
	id         string
	name       string
	recipients []transport.ChatTarget
	action     Action
	onDone     func(JobStatus)
}

// Service runs dispatch jobs asynchronously.
type Service struct {
	mu sync.Mutex

	cfg  ServiceConfig
	disp *Dispatcher
	log  logx.Logger

	queue  chan job
	stopCh chan struct{}
	// stopDone is non-nil while Stop is in progress.
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	statusMu sync.RWMutex
	status   map[string]*JobStatus
	cancels  map[string]context.CancelFunc
	canceled map[string]bool
}

func NewService(cfg ServiceConfig, disp *Dispatcher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:      cfg,
		disp:     disp,
		log:      log.With(logx.Comp("dispatch")),
		queue:    make(chan job, cfg.QueueSize),
		status:   map[string]*JobStatus{},
		cancels:  map[string]context.CancelFunc{},
		canceled: map[string]bool{},
	}
}

func (s *Service) Dispatcher() *Dispatcher { return s.disp }

// Apply updates status bounds. Worker count and queue size take effect on
// the next Start.
func (s *Service) Apply(cfg ServiceConfig) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	workers := s.cfg.Workers
	queue, stopCh, runCtx := s.queue, s.stopCh, s.runCtx

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in dispatch worker",
						logx.Int("worker", idx),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.log.Info("service started", logx.Int("workers", workers), logx.Int("queue", cap(queue)))
}

// Stop cancels running jobs and waits for workers until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	stopCh, cancel := s.stopCh, s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh, s.runCtx, s.stopDone = nil, nil, nil
		s.mu.Unlock()
		close(done)
		s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Submit queues a job and returns its id. onDone, if set, runs on the worker
// goroutine once the job completes or is canceled.
func (s *Service) Submit(name string, recipients []transport.ChatTarget, action Action, onDone func(JobStatus)) (string, error) {
	if action == nil {
		return "", fmt.Errorf("dispatch: nil action")
	}
	s.mu.Lock()
	running := s.stopCh != nil && s.stopDone == nil
	q := s.queue
	s.mu.Unlock()
	if !running {
		return "", ErrStopped
	}

	now := time.Now()
	s.Prune(now)
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	j := job{id: id.String(), name: name, recipients: recipients, action: action, onDone: onDone}

	s.statusMu.Lock()
	s.status[j.id] = &JobStatus{ID: j.id, Name: name, Result: Result{Total: len(recipients)}, CreatedAt: now}
	s.statusMu.Unlock()

	select {
	case q <- j:
		s.log.Debug("job enqueued",
			logx.String("job", j.id),
			logx.String("name", name),
			logx.Int("total", len(recipients)),
			logx.Int("queue_len", len(q)),
		)
		return j.id, nil
	default:
		s.statusMu.Lock()
		delete(s.status, j.id)
		s.statusMu.Unlock()
		s.log.Warn("dispatch queue full; rejecting job", logx.String("name", name), logx.Int("queue_cap", cap(q)))
		return "", ErrQueueFull
	}
}

func (s *Service) Status(id string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[id]
	if !ok || st == nil {
		return JobStatus{}, false
	}
	return *st, true
}

// Cancel stops a queued or running job. It reports false for unknown or
// finished jobs.
func (s *Service) Cancel(id string) bool {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st, ok := s.status[id]
	if !ok || st == nil || st.Done() {
		return false
	}
	if cancel := s.cancels[id]; cancel != nil {
		cancel()
	}
	s.canceled[id] = true
	return true
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.execJob(ctx, j)
		}
	}
}

func (s *Service) execJob(ctx context.Context, j job) {
	jctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.statusMu.Lock()
	if s.canceled[j.id] {
		cancel()
	}
	s.cancels[j.id] = cancel
	if st := s.status[j.id]; st != nil {
		st.StartedAt = time.Now()
		st.Running = true
	}
	s.statusMu.Unlock()

	s.log.Info("job started", logx.String("job", j.id), logx.String("name", j.name), logx.Int("total", len(j.recipients)))
	res := s.disp.run(jctx, j.recipients, j.action, func(r Result) {
		s.statusMu.Lock()
		if st := s.status[j.id]; st != nil {
			st.Result = r
		}
		s.statusMu.Unlock()
	})

	s.statusMu.Lock()
	delete(s.cancels, j.id)
	delete(s.canceled, j.id)
	final := JobStatus{ID: j.id, Name: j.name, Result: res, DoneAt: time.Now()}
	if st := s.status[j.id]; st != nil {
		st.Result = res
		st.Running = false
		st.DoneAt = final.DoneAt
		final = *st
	}
	s.statusMu.Unlock()

	fields := []logx.Field{
		logx.String("job", j.id),
		logx.String("name", j.name),
		logx.Int("total", res.Total),
		logx.Int("ok", res.Succeeded),
		logx.Int("failed", res.Failed),
		logx.Int("permanent", res.Permanent),
		logx.Int("throttled", res.Throttled),
		logx.Int("capped", res.Capped),
		logx.Bool("canceled", res.Canceled),
		logx.Duration("took", res.Took),
	}
	if res.Failed > 0 || res.Canceled {
		s.log.Warn("job finished with failures", fields...)
	} else {
		s.log.Info("job finished", fields...)
	}

	if j.onDone != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in dispatch callback", logx.String("job", j.id), logx.Any("panic", r))
				}
			}()
			j.onDone(final)
		}()
	}
}
