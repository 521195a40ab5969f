// Package maintenance runs periodic housekeeping jobs on cron schedules.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "kinobot/pkg/logx"
)

// Job is one named housekeeping task.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

const (
	defaultJobTimeout = time.Minute
	maxStartupSpread  = 30 * time.Second
)

var ErrUnknownJob = errors.New("maintenance: unknown job")

type Service struct {
	log    logx.Logger
	parser cron.Parser

	mu   sync.Mutex
	jobs []Job
	c    *cron.Cron
	ctx  context.Context
	stop context.CancelFunc

	runMu sync.Mutex
	last  map[string]RunInfo
}

// RunInfo is the outcome of the latest run of a job.
type RunInfo struct {
	At   time.Time
	Took time.Duration
	Err  string
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log.With(logx.Comp("maintenance")),
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		last:   map[string]RunInfo{},
	}
}

// ParseSpec validates a cron spec ("*/5 * * * *", "@every 10m", "@hourly").
func (s *Service) ParseSpec(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty schedule")
	}
	sch, err := s.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return sch, nil
}

// Add registers a job. Jobs with an empty spec are skipped; adding after
// Start has no effect until the next Start.
func (s *Service) Add(j Job) error {
	j.Name = strings.TrimSpace(j.Name)
	if j.Name == "" || j.Run == nil {
		return errors.New("maintenance: job needs a name and a func")
	}
	if strings.TrimSpace(j.Spec) == "" {
		s.log.Debug("job disabled", logx.String("job", j.Name))
		return nil
	}
	if _, err := s.ParseSpec(j.Spec); err != nil {
		return fmt.Errorf("maintenance %s: %w", j.Name, err)
	}
	if j.Timeout <= 0 {
		j.Timeout = defaultJobTimeout
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].Name == j.Name {
			s.jobs[i] = j
			return nil
		}
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Service) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Name)
	}
	return out
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx, s.stop = context.WithCancel(ctx)
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	jctx, now := s.ctx, time.Now()
	for _, j := range s.jobs {
		sch, err := s.ParseSpec(j.Spec)
		if err != nil {
			s.log.Warn("job skipped", logx.String("job", j.Name), logx.Err(err))
			continue
		}
		sch = spread(sch, now, j.Name)
		job := j
		s.c.Schedule(sch, cron.FuncJob(func() { _ = s.run(jctx, job) }))
	}
	s.c.Start()
	s.log.Info("service started", logx.Int("jobs", len(s.jobs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.stop
	s.c, s.stop = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

// RunNow executes a job synchronously, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var (
		job   Job
		found bool
	)
	for _, j := range s.jobs {
		if j.Name == name {
			job, found = j, true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, job)
}

// LastRun reports the latest outcome of a job.
func (s *Service) LastRun(name string) (RunInfo, bool) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	ri, ok := s.last[name]
	return ri, ok
}

func (s *Service) run(ctx context.Context, j Job) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()
	start := time.Now()
	err := j.Run(cctx)
	ri := RunInfo{At: start, Took: time.Since(start)}
	if err != nil {
		ri.Err = err.Error()
		s.log.Warn("job failed", logx.String("job", j.Name), logx.Duration("took", ri.Took), logx.Err(err))
	} else {
		s.log.Debug("job ok", logx.String("job", j.Name), logx.Duration("took", ri.Took))
	}
	s.runMu.Lock()
	s.last[j.Name] = ri
	s.runMu.Unlock()
	return err
}

// spreadSchedule delays the first run of interval jobs so they do not all
// fire together after a restart.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

func spread(sch cron.Schedule, now time.Time, tag string) cron.Schedule {
	every, ok := sch.(cron.ConstantDelaySchedule)
	if !ok {
		return sch
	}
	limit := min(every.Delay, maxStartupSpread)
	if limit <= 0 {
		return sch
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))
	r := rand.New(rand.NewPCG(h.Sum64(), uint64(now.UnixNano())))
	jitter := time.Duration(r.Int64N(int64(limit)))
	return &spreadSchedule{base: sch, first: now.Add(every.Delay + jitter)}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
