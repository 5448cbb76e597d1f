package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	JobIdempotencyPrune = "idempotency_prune"
	JobPayslipPrune     = "payslip_archive_prune"
)

type RunFunc func(context.Context) (any, error)

type schedule struct {
	Type     string
	Interval time.Duration
	Run      RunFunc
}

type job struct {
	Type string
	Run  RunFunc
}

// Service runs maintenance jobs on a single worker. Runs are recorded in
// job_runs when a pool is configured.
type Service struct {
	DB        *pgxpool.Pool
	queue     chan job
	schedules []schedule
}

func New(db *pgxpool.Pool) *Service {
	return &Service{
		DB:    db,
		queue: make(chan job, 32),
	}
}

// Schedule registers run to be enqueued every interval once Start is called.
// Non-positive intervals are ignored.
func (s *Service) Schedule(jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 || run == nil {
		return
	}
	s.schedules = append(s.schedules, schedule{Type: jobType, Interval: interval, Run: run})
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	for _, sched := range s.schedules {
		go s.tick(ctx, sched)
	}
}

func (s *Service) Enqueue(jobType string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
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
		}
	}
}

func (s *Service) tick(ctx context.Context, sched schedule) {
	ticker := time.NewTicker(sched.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(sched.Type, sched.Run)
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.DB != nil {
		if err := s.DB.QueryRow(ctx, `
      INSERT INTO job_runs (job_type, status)
      VALUES ($1,$2)
      RETURNING id::text
    `, j.Type, "running").Scan(&runID); err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	slog.Debug("job finished", "jobType", j.Type, "status", status)

	if runID == "" {
		return details, err
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if _, updErr := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, detailsJSON, runID); updErr != nil {
		slog.Warn("job run update failed", "err", updErr)
	}
	return details, err
}
