package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Handler runs a due job and returns a short result for the log.
type Handler func(ctx context.Context, job CronJob) (string, error)

// Service schedules jobs persisted as JSON at storePath.
type Service struct {
	storePath string
	mu        sync.Mutex
	jobs      []CronJob
	OnJob     Handler
	cron      *rcron.Cron
	entryMap  map[string]rcron.EntryID // job ID -> cron entry ID
	runCtx    context.Context
	cancel    context.CancelFunc
	stopCh    chan struct{}
}

func NewService(storePath string) *Service {
	return &Service{
		storePath: storePath,
		entryMap:  make(map[string]rcron.EntryID),
	}
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	stopCh := make(chan struct{})

	s.mu.Lock()
	s.runCtx = runCtx
	s.cancel = cancel
	s.stopCh = stopCh
	if err := s.load(); err != nil {
		log.Printf("[cron] warning: failed to load jobs: %v", err)
	}
	s.cron = rcron.New(rcron.WithSeconds())
	for i := range s.jobs {
		if s.jobs[i].Enabled && s.jobs[i].Schedule.Kind == KindCron {
			s.registerJob(&s.jobs[i])
		}
	}
	count := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	log.Printf("[cron] started with %d jobs", count)

	go s.tickLoop(runCtx)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
		}
	}()

	return nil
}

// registerJob must be called with s.mu held.
func (s *Service) registerJob(job *CronJob) {
	jobCopy := *job
	id, err := s.cron.AddFunc(job.Schedule.Expr, func() {
		s.executeJob(jobCopy)
	})
	if err != nil {
		log.Printf("[cron] failed to register job %s (%s): %v", job.Name, job.Schedule.Expr, err)
		return
	}
	s.entryMap[job.ID] = id
}

// unregisterJob must be called with s.mu held.
func (s *Service) unregisterJob(id string) {
	if entryID, ok := s.entryMap[id]; ok && s.cron != nil {
		s.cron.Remove(entryID)
		delete(s.entryMap, id)
	}
}

func (s *Service) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		return context.Background()
	}
	return s.runCtx
}

func (s *Service) executeJob(job CronJob) {
	log.Printf("[cron] executing job %s (%s)", job.Name, job.ID)

	if s.OnJob == nil {
		log.Printf("[cron] no OnJob handler set")
		return
	}

	result, err := s.OnJob(s.jobContext(), job)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID != job.ID {
			continue
		}
		state := &s.jobs[i].State
		state.LastRunAtMs = time.Now().UnixMilli()
		if err != nil {
			state.LastStatus = StatusError
			state.LastError = err.Error()
			log.Printf("[cron] job %s error: %v", job.Name, err)
		} else {
			state.LastStatus = StatusOK
			state.LastError = ""
			log.Printf("[cron] job %s result: %s", job.Name, truncate(result, 100))
		}

		if s.jobs[i].DeleteAfterRun {
			s.unregisterJob(job.ID)
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
		}
		break
	}

	if err := s.save(); err != nil {
		log.Printf("[cron] save jobs: %v", err)
	}
}

// dueJobs collects "every" and "at" jobs that should run at now. An "every" job first
// fires one interval after it was created. One-shot jobs are disabled as they are
// collected so they fire once.
func (s *Service) dueJobs(now int64) []CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []CronJob
	for i := range s.jobs {
		job := &s.jobs[i]
		if !job.Enabled {
			continue
		}
		switch job.Schedule.Kind {
		case KindEvery:
			last := max(job.State.LastRunAtMs, job.CreatedAtMs)
			if job.Schedule.EveryMs > 0 && now >= last+job.Schedule.EveryMs {
				due = append(due, *job)
			}
		case KindAt:
			if job.Schedule.AtMs > 0 && now >= job.Schedule.AtMs {
				job.Enabled = false
				due = append(due, *job)
			}
		}
	}
	return due
}

func (s *Service) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, job := range s.dueJobs(time.Now().UnixMilli()) {
				if ctx.Err() != nil {
					return
				}
				s.executeJob(job)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopCh := s.stopCh
	s.cancel = nil
	s.stopCh = nil
	c := s.cron
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if stopCh != nil {
		close(stopCh)
	}

	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[cron] stop timeout waiting for running jobs")
		}
	}
	log.Printf("[cron] stopped")
}

// AddJob validates, stores and schedules a new job.
func (s *Service) AddJob(name string, schedule Schedule, payload Payload) (*CronJob, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := NewCronJob(name, schedule, payload)
	s.jobs = append(s.jobs, job)

	if job.Schedule.Kind == KindCron && s.cron != nil {
		s.registerJob(&s.jobs[len(s.jobs)-1])
	}

	if err := s.save(); err != nil {
		return nil, fmt.Errorf("save jobs: %w", err)
	}

	return &job, nil
}

func (s *Service) RemoveJob(id string) bool {
	return s.RemoveWhere(func(job CronJob) bool { return job.ID == id }) > 0
}

// RemoveWhere deletes every job for which match returns true and reports how many
// were removed.
func (s *Service) RemoveWhere(match func(CronJob) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.jobs[:0]
	removed := 0
	for _, job := range s.jobs {
		if match(job) {
			s.unregisterJob(job.ID)
			removed++
			continue
		}
		kept = append(kept, job)
	}
	s.jobs = kept
	if removed > 0 {
		if err := s.save(); err != nil {
			log.Printf("[cron] save jobs: %v", err)
		}
	}
	return removed
}

func (s *Service) ListJobs() []CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]CronJob, len(s.jobs))
	copy(result, s.jobs)
	return result
}

func (s *Service) EnableJob(id string, enabled bool) (*CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID != id {
			continue
		}
		s.jobs[i].Enabled = enabled
		if s.jobs[i].Schedule.Kind == KindCron && s.cron != nil {
			if enabled {
				if _, ok := s.entryMap[id]; !ok {
					s.registerJob(&s.jobs[i])
				}
			} else {
				s.unregisterJob(id)
			}
		}
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("save jobs: %w", err)
		}
		job := s.jobs[i]
		return &job, nil
	}
	return nil, fmt.Errorf("job %s not found", id)
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var jobs []CronJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return err
	}
	s.jobs = jobs
	return nil
}

func (s *Service) save() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.storePath, data, 0644)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
