package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/ashureev/attention-labs/internal/store"
)

type fakeRepo struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakeRepo) UpsertObserver(context.Context, string, time.Time) error { return nil }
func (f *fakeRepo) GetObserver(context.Context, string) (*store.Observer, error) {
	return nil, store.ErrNotFound
}
func (f *fakeRepo) SaveReport(context.Context, *domain.SessionReport) error { return nil }
func (f *fakeRepo) GetReport(context.Context, string) (*domain.SessionReport, error) {
	return nil, store.ErrNotFound
}
func (f *fakeRepo) ListReports(context.Context, string, int) ([]*domain.SessionReport, error) {
	return nil, nil
}
func (f *fakeRepo) DeleteReportsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}
func (f *fakeRepo) Ping(context.Context) error { return nil }
func (f *fakeRepo) Close() error               { return nil }

func (f *fakeRepo) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

type fakePruner struct {
	cutoff time.Time
	ids    []string
}

func (p *fakePruner) PruneEnded(cutoff time.Time) []string {
	p.cutoff = cutoff
	return p.ids
}

func TestSweep(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{deleted: 3}
	pruner := &fakePruner{ids: []string{"a", "b"}}
	cfg := Config{
		Retention:         7 * 24 * time.Hour,
		EndedSessionGrace: time.Hour,
		Clock:             func() time.Time { return now },
	}

	var evicted []string
	res := Sweep(context.Background(), repo, pruner, cfg, func(id string) {
		evicted = append(evicted, id)
	})

	if res.ReportsDeleted != 3 || res.SessionsEvicted != 2 {
		t.Fatalf("result = %+v", res)
	}
	if len(evicted) != 2 || evicted[0] != "a" {
		t.Fatalf("evicted = %v", evicted)
	}
	if !repo.cutoffs[0].Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Fatalf("report cutoff = %v", repo.cutoffs[0])
	}
	if !pruner.cutoff.Equal(now.Add(-time.Hour)) {
		t.Fatalf("session cutoff = %v", pruner.cutoff)
	}
}

func TestSweepRepoError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("database is locked")}
	res := Sweep(context.Background(), repo, nil, Config{Retention: time.Hour}, nil)
	if res.ReportsDeleted != 0 || res.SessionsEvicted != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestStartWorkerStopsOnCancel(t *testing.T) {
	repo := &fakeRepo{}
	ctx, cancel := context.WithCancel(context.Background())

	StartWorker(ctx, repo, nil, Config{Interval: 5 * time.Millisecond, Retention: time.Hour}, nil)

	deadline := time.Now().Add(2 * time.Second)
	for repo.calls() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("worker did not sweep")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
}
