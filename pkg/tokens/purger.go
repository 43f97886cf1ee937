package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/apilogin/pkg/observability"
)

// Purger removes expired tokens on a cron schedule.
// Expiry is enforced at redemption; purging only reclaims space.
type Purger struct {
	store   Store
	logger  *observability.Logger
	metrics *observability.Metrics
	clock   func() time.Time
	timeout time.Duration
	cron    *cron.Cron
}

// NewPurger creates a purger over store
func NewPurger(store Store, logger *observability.Logger) *Purger {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Purger{
		store:   store,
		logger:  logger.WithField("component", "token_purger"),
		clock:   time.Now,
		timeout: 30 * time.Second,
	}
}

// WithMetrics counts purged tokens on m
func (p *Purger) WithMetrics(m *observability.Metrics) *Purger {
	p.metrics = m
	return p
}

// RunOnce purges expired tokens now
func (p *Purger) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	n, err := p.store.Purge(ctx, p.clock())
	if err != nil {
		return 0, err
	}
	p.metrics.TokensPurged(n)
	if n > 0 {
		p.logger.WithField("purged", n).Info("Purged expired login tokens")
	}
	return n, nil
}

// Start schedules purging with a standard five-field cron expression
func (p *Purger) Start(schedule string) error {
	if p.cron != nil {
		return fmt.Errorf("purger already started")
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		defer observability.RecoverPanic(p.logger, "token purge")
		if _, err := p.RunOnce(context.Background()); err != nil {
			p.logger.WithError(err).Error("Token purge failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}

	c.Start()
	p.cron = c
	p.logger.WithField("schedule", schedule).Info("Token purger started")
	return nil
}

// Stop halts the schedule and waits for a running purge to finish
func (p *Purger) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	p.cron = nil
}
