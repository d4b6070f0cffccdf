package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Service runs queued work on a single background worker. When DB is set
// every run is recorded in job_runs; otherwise the last results are kept
// in memory.
type Service struct {
	DB    *pgxpool.Pool
	queue chan job

	mu     sync.Mutex
	recent []Run
	wg     sync.WaitGroup
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

type Run struct {
	Type        string    `json:"jobType"`
	Status      string    `json:"status"`
	Details     any       `json:"details,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

const recentLimit = 50

func New(db *pgxpool.Pool, queueSize int) *Service {
	if queueSize < 1 {
		queueSize = 128
	}
	return &Service{
		DB:    db,
		queue: make(chan job, queueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	s.wg.Add(1)
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		s.wg.Done()
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// Wait blocks until every enqueued job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Recent returns the newest in-memory job results first.
func (s *Service) Recent() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Run, len(s.recent))
	for i, run := range s.recent {
		out[len(s.recent)-1-i] = run
	}
	return out
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
			s.wg.Done()
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	started := time.Now().UTC()
	var runID int64
	if s.DB != nil {
		if err := s.DB.QueryRow(ctx, `
      INSERT INTO job_runs (job_type, status, started_at)
      VALUES ($1,$2,$3)
      RETURNING id
    `, j.Type, StatusRunning, started).Scan(&runID); err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
	}

	details, err := j.Run(ctx)
	record := Run{Type: j.Type, Status: StatusCompleted, Details: details, StartedAt: started, CompletedAt: time.Now().UTC()}
	if err != nil {
		record.Status = StatusFailed
		record.Error = err.Error()
	}
	s.remember(record)

	if runID != 0 {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			slog.Warn("job details marshal failed", "err", marshalErr)
			detailsJSON = []byte("{}")
		}
		if _, updErr := s.DB.Exec(context.WithoutCancel(ctx), `
      UPDATE job_runs
      SET status = $1, details_json = $2, error = $3, completed_at = $4
      WHERE id = $5
    `, record.Status, detailsJSON, record.Error, record.CompletedAt, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) remember(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, run)
	if len(s.recent) > recentLimit {
		s.recent = s.recent[len(s.recent)-recentLimit:]
	}
}
