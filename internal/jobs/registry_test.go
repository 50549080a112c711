package jobs

import (
	"errors"
	"testing"
	"time"
)

func TestRegistryDeliversResultOnce(t *testing.T) {
	r := NewRegistry(time.Minute)
	job := r.Create()
	if job.ID == "" || job.Status != StatusRunning {
		t.Fatalf("unexpected job: %+v", job)
	}

	pending, ok := r.Fetch(job.ID)
	if !ok || pending.Finished() {
		t.Fatalf("expected running job, got %+v ok=%v", pending, ok)
	}

	r.Complete(job.ID, map[string]int{"items": 3}, nil)
	done, ok := r.Fetch(job.ID)
	if !ok || done.Status != StatusSucceeded || done.FinishedAt == nil {
		t.Fatalf("expected succeeded job, got %+v ok=%v", done, ok)
	}
	if done.Result.(map[string]int)["items"] != 3 {
		t.Fatalf("unexpected result %+v", done.Result)
	}

	if _, ok := r.Fetch(job.ID); ok {
		t.Fatalf("expected job removed after delivery")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistryRecordsFailure(t *testing.T) {
	r := NewRegistry(time.Minute)
	job := r.Create()
	r.Complete(job.ID, nil, errors.New("invalid trade route"))
	r.Complete(job.ID, "late", nil)

	got, ok := r.Fetch(job.ID)
	if !ok || got.Status != StatusFailed || got.Error != "invalid trade route" || got.Result != nil {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestRegistrySweepDropsExpiredFinishedJobs(t *testing.T) {
	r := NewRegistry(time.Minute)
	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	finished := r.Create()
	running := r.Create()
	r.Complete(finished.ID, "ok", nil)

	r.now = func() time.Time { return base.Add(30 * time.Second) }
	if removed := r.Sweep(); removed != 0 {
		t.Fatalf("expected nothing swept before ttl, got %d", removed)
	}

	r.now = func() time.Time { return base.Add(2 * time.Minute) }
	if removed := r.Sweep(); removed != 1 {
		t.Fatalf("expected one swept job, got %d", removed)
	}
	if _, ok := r.Fetch(finished.ID); ok {
		t.Fatalf("expected finished job swept")
	}
	if _, ok := r.Fetch(running.ID); !ok {
		t.Fatalf("expected running job kept")
	}
}

func TestRegistryCompleteUnknownIsIgnored(t *testing.T) {
	r := NewRegistry(0)
	r.Complete("missing", "x", nil)
	if r.Len() != 0 {
		t.Fatalf("expected empty registry")
	}
}
