package orgs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/harborgate/orgd/pkg/observability"
)

// DefaultPurgeRetention is how long a Revoked membership is kept
// before the scheduled purge hard-deletes it.
const DefaultPurgeRetention = 90 * 24 * time.Hour

// DefaultPurgeSchedule runs the purge daily at 00:15 UTC.
const DefaultPurgeSchedule = "15 0 * * *"

// MembershipPurger hard-deletes memberships that have been Revoked
// longer than the retention window. Removals stay soft-deleted until
// then so directory-sync replays remain idempotent.
type MembershipPurger struct {
	store     Storage
	logger    *observability.Logger
	metrics   *observability.Metrics
	retention time.Duration
	schedule  string
	cron      *cron.Cron
}

// NewMembershipPurger creates a purger. Non-positive retention and an
// empty schedule fall back to the defaults; metrics may be nil.
func NewMembershipPurger(store Storage, logger *observability.Logger, metrics *observability.Metrics, retention time.Duration, schedule string) *MembershipPurger {
	if retention <= 0 {
		retention = DefaultPurgeRetention
	}
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	return &MembershipPurger{
		store:     store,
		logger:    logger.WithField("component", "membership_purger"),
		metrics:   metrics,
		retention: retention,
		schedule:  schedule,
	}
}

// Start schedules the purge job.
func (p *MembershipPurger) Start() error {
	p.cron = cron.New()
	if _, err := p.cron.AddFunc(p.schedule, func() {
		if err := p.RunOnce(context.Background()); err != nil {
			p.logger.WithError(err).Error("membership purge failed")
		}
	}); err != nil {
		return err
	}
	p.cron.Start()
	p.logger.WithField("schedule", p.schedule).Info("membership purge scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (p *MembershipPurger) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// RunOnce purges immediately. Exposed for manual runs and tests.
func (p *MembershipPurger) RunOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-p.retention)
	purged, err := p.store.PurgeRevokedMemberships(ctx, cutoff)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.MembershipsPurgedTotal.Add(float64(purged))
	}
	if purged > 0 {
		p.logger.WithField("purged", purged).Info("purged revoked memberships")
	}
	return nil
}
