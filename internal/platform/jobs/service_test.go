package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunNowWithoutDatabase(t *testing.T) {
	svc := New(nil)
	details, err := svc.RunNow(context.Background(), JobIdempotencyPrune, func(context.Context) (any, error) {
		return map[string]int{"deleted": 3}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.(map[string]int)["deleted"] != 3 {
		t.Fatalf("unexpected details: %v", details)
	}

	boom := errors.New("boom")
	if _, err := svc.RunNow(context.Background(), JobPayslipPrune, func(context.Context) (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestScheduledJobRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan struct{}, 4)
	svc := New(nil)
	svc.Schedule(JobIdempotencyPrune, 5*time.Millisecond, func(context.Context) (any, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil, nil
	})
	svc.Schedule("ignored", 0, func(context.Context) (any, error) { return nil, nil })
	if len(svc.schedules) != 1 {
		t.Fatalf("expected one schedule, got %d", len(svc.schedules))
	}
	svc.Start(ctx)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job did not run")
	}
}

func TestEnqueueReportsFullQueue(t *testing.T) {
	svc := New(nil)
	noop := func(context.Context) (any, error) { return nil, nil }
	for i := 0; i < cap(svc.queue); i++ {
		if !svc.Enqueue("fill", noop) {
			t.Fatalf("enqueue %d failed early", i)
		}
	}
	if svc.Enqueue("overflow", noop) {
		t.Fatal("expected full queue to reject")
	}
}
