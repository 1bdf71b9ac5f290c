// Package job holds the background maintenance tasks run by the server.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/shipping-auth/internal/observability"
)

// UnverifiedPurger deletes accounts whose verification link expired
// before it was followed.
type UnverifiedPurger interface {
	DeleteUnverifiedExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cleanup removes stale unverified signups so their email and phone can be
// registered again.
type Cleanup struct {
	Users   UnverifiedPurger
	Log     logrus.FieldLogger
	Metrics *observability.Metrics
	Timeout time.Duration
	Now     func() time.Time
}

func NewCleanup(users UnverifiedPurger, log logrus.FieldLogger, metrics *observability.Metrics) *Cleanup {
	return &Cleanup{Users: users, Log: log, Metrics: metrics, Timeout: 30 * time.Second, Now: time.Now}
}

// Run performs one sweep and returns the number of deleted accounts.
func (j *Cleanup) Run(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	n, err := j.Users.DeleteUnverifiedExpired(ctx, j.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete unverified users: %w", err)
	}
	j.Metrics.Cleaned(n)
	return n, nil
}

// Schedule registers the sweep on a new cron scheduler. The caller starts
// it and stops it on shutdown.
func (j *Cleanup) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := j.Run(context.Background())
		if err != nil {
			j.Log.WithError(err).Error("unverified user cleanup failed")
			return
		}
		if n > 0 {
			j.Log.WithField("deleted", n).Info("removed expired unverified users")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule cleanup %q: %w", spec, err)
	}
	return c, nil
}
