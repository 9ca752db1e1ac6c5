package retention

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"mercator-hq/relay/pkg/usage"
	"mercator-hq/relay/pkg/usage/storage"
)

func TestPruner_Prune(t *testing.T) {
	now := time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		retentionDays int
		wantDeleted   int64
	}{
		{name: "keeps recent records", retentionDays: 400, wantDeleted: 1},
		{name: "short retention", retentionDays: 10, wantDeleted: 2},
		{name: "unlimited", retentionDays: 0, wantDeleted: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := storage.NewMemoryStorage()
			for _, age := range []time.Duration{time.Hour, 30 * 24 * time.Hour, 500 * 24 * time.Hour} {
				store.Append(ctx, &usage.Record{SessionID: "a", Time: now.Add(-age)})
			}

			pruner := NewPruner(store, &Config{RetentionDays: tt.retentionDays})
			pruner.now = func() time.Time { return now }

			deleted, err := pruner.Prune(ctx)
			if err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("Prune() deleted %d, want %d", deleted, tt.wantDeleted)
			}
		})
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name          string
		schedule      string
		retentionDays int
		wantRunning   bool
		wantError     bool
	}{
		{name: "valid daily schedule", schedule: "0 3 * * *", retentionDays: 90, wantRunning: true},
		{name: "valid hourly schedule", schedule: "0 * * * *", retentionDays: 90, wantRunning: true},
		{name: "empty schedule", schedule: "", retentionDays: 90},
		{name: "unlimited retention", schedule: "0 3 * * *", retentionDays: 0},
		{name: "invalid schedule", schedule: "invalid cron", retentionDays: 90, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruner := &Pruner{
				storage: storage.NewMemoryStorage(),
				config:  &Config{PruneSchedule: tt.schedule, RetentionDays: tt.retentionDays},
				logger:  slog.Default(),
				now:     time.Now,
			}
			scheduler := NewScheduler(pruner)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := scheduler.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Fatalf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", scheduler.IsRunning(), tt.wantRunning)
			}
			scheduler.Stop()
			if scheduler.IsRunning() {
				t.Error("IsRunning() after Stop = true")
			}
		})
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	pruner := NewPruner(storage.NewMemoryStorage(), DefaultConfig())
	scheduler := NewScheduler(pruner)

	ctx, cancel := context.WithCancel(context.Background())
	if err := scheduler.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for scheduler.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still running after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
