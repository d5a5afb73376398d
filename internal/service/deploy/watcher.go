package deploy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shiplane/shiplane/internal/domain"
)

// DefaultPollInterval is the cadence for both the list-level and the
// detail-level pollers. There is no backoff; polling is bounded only by the
// lifetime of the owning view, expressed as the context.
const DefaultPollInterval = 5 * time.Second

// WatchList polls a service's deployment list while any deployment is
// non-terminal. Every cycle fetches the list first and then re-evaluates the
// stop condition. The watcher stops as soon as every deployment is terminal
// or the context is cancelled; after cancellation no update is delivered.
func (s Service) WatchList(ctx context.Context, serviceID string, interval time.Duration, onUpdate func([]domain.Deployment)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		deployments, err := s.ListByService(ctx, serviceID, 0)
		if ctx.Err() != nil {
			// The view closed while the fetch was in flight; discard.
			return ctx.Err()
		}
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("deployment list poll failed", "service_id", serviceID, "error", err)
			}
		} else {
			if onUpdate != nil {
				onUpdate(deployments)
			}
			if !anyOpen(deployments) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WatchDeployment polls one deployment's workflow detail until its
// aggregate status is terminal. Results arriving after cancellation are
// discarded, never applied.
func (s Service) WatchDeployment(ctx context.Context, deploymentID string, interval time.Duration, onUpdate func(StatusReport)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := s.PollStatus(ctx, deploymentID)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("deployment detail poll failed", "deployment_id", deploymentID, "error", err)
			}
		} else {
			if onUpdate != nil {
				onUpdate(*report)
			}
			s.broadcast(*report)
			if report.Deployment.Status.Terminal() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s Service) broadcast(report StatusReport) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return
	}
	s.hub.Broadcast(report.Deployment.ServiceID, payload)
}

func anyOpen(deployments []domain.Deployment) bool {
	for _, d := range deployments {
		if !d.Status.Terminal() {
			return true
		}
	}
	return false
}
