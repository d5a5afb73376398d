package deploy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shiplane/shiplane/internal/domain"
)

const testPollInterval = 2 * time.Millisecond

func TestWatchDeploymentStopsOnTerminal(t *testing.T) {
	env := newTestEnv()
	deployment := createDeployment(t, env, false)
	env.engine.setSteps(runningSteps(time.Now().UTC()))

	var reports []StatusReport
	done := make(chan error, 1)
	go func() {
		done <- env.svc.WatchDeployment(context.Background(), deployment.ID, testPollInterval, func(report StatusReport) {
			reports = append(reports, report)
			if len(reports) == 2 {
				env.engine.setSteps(successSteps(time.Now().UTC()))
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watcher returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after terminal status")
	}
	if len(reports) < 3 {
		t.Fatalf("expected at least 3 reports, got %d", len(reports))
	}
	last := reports[len(reports)-1]
	if last.Deployment.Status != domain.StatusSuccess {
		t.Fatalf("expected final report SUCCESS, got %s", last.Deployment.Status)
	}
	for _, report := range reports[:len(reports)-1] {
		if report.Deployment.Status.Terminal() {
			t.Fatal("terminal report delivered before the watcher stopped")
		}
	}
}

func TestWatchDeploymentCancelDiscardsLateResults(t *testing.T) {
	env := newTestEnv()
	deployment := createDeployment(t, env, false)
	env.engine.setSteps(runningSteps(time.Now().UTC()))

	ctx, cancel := context.WithCancel(context.Background())
	updates := 0
	done := make(chan error, 1)
	go func() {
		done <- env.svc.WatchDeployment(ctx, deployment.ID, testPollInterval, func(StatusReport) {
			updates++
			cancel()
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not honor cancellation")
	}
	if updates != 1 {
		t.Fatalf("expected exactly one update before cancellation, got %d", updates)
	}
}

func TestWatchListStopsWhenAllTerminal(t *testing.T) {
	env := newTestEnv()
	deployment := createDeployment(t, env, false)
	env.engine.setSteps(runningSteps(time.Now().UTC()))

	cycles := 0
	done := make(chan error, 1)
	go func() {
		done <- env.svc.WatchList(context.Background(), "svc-1", testPollInterval, func(deployments []domain.Deployment) {
			cycles++
			if cycles == 2 {
				// The deployment finishes between two list polls.
				env.engine.setSteps(successSteps(time.Now().UTC()))
				if _, err := env.svc.PollStatus(context.Background(), deployment.ID); err != nil {
					t.Errorf("PollStatus failed: %v", err)
				}
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("list watcher returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("list watcher did not stop once all deployments were terminal")
	}
	if cycles < 3 {
		t.Fatalf("expected the stop condition to be re-evaluated each cycle, got %d cycles", cycles)
	}
}

func TestWatchListCancel(t *testing.T) {
	env := newTestEnv()
	createDeployment(t, env, false)
	env.engine.setSteps(runningSteps(time.Now().UTC()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- env.svc.WatchList(ctx, "svc-1", testPollInterval, func([]domain.Deployment) {
			cancel()
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("list watcher did not honor cancellation")
	}
}
