// Package scheduler runs the periodic maintenance jobs of the oracle layer.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/rub-lamp/oracle_layer/internal/logging"
	"github.com/rub-lamp/oracle_layer/internal/metrics"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron    *cron.Cron
	logger  *logging.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu      sync.Mutex
	jobs    map[string]Job
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// New creates a scheduler. Each run gets timeout, or one minute when zero.
func New(logger *logging.Logger, m *metrics.Metrics, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	adapter := cronLogger{entry: logger.WithField("component", "scheduler")}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(adapter), cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter))),
		logger:  logger,
		metrics: m,
		timeout: timeout,
		jobs:    make(map[string]Job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds job under name on spec ("@every 30s", "*/5 * * * *"). An empty spec disables the job.
func (s *Scheduler) Register(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	s.jobs[name] = job
	if spec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		delete(s.jobs, name)
		return fmt.Errorf("register %s: %w", name, err)
	}
	return nil
}

// RunNow executes a registered job synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	return s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) error {
	s.running.Add(1)
	defer s.running.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	if s.metrics != nil {
		s.metrics.RecordJobRun(name, time.Since(start), err == nil)
	}
	log := s.logger.WithContext(ctx).WithFields(logrus.Fields{"job": name, "duration": time.Since(start).String()})
	if err != nil {
		log.WithError(err).Warn("scheduled job failed")
		return err
	}
	log.Debug("scheduled job finished")
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("jobs", len(s.jobs)).Info("scheduler started")
}

// Stop stops scheduling, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
	s.running.Wait()
	s.logger.Info("scheduler stopped")
}

type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	out := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
