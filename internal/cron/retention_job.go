package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

// Sweep removes rows of one kind that are older than Retention.
type Sweep struct {
	Name      string
	Retention time.Duration
	Delete    func(ctx context.Context, cutoff time.Time) (int64, error)
}

// TxSweep adapts a repository delete that must run inside a transaction.
func TxSweep(name string, retention time.Duration, runner txRunner, del func(tx *gorm.DB, cutoff time.Time) (int64, error)) Sweep {
	return Sweep{
		Name:      name,
		Retention: retention,
		Delete: func(ctx context.Context, cutoff time.Time) (int64, error) {
			var deleted int64
			err := runner.WithTx(ctx, func(tx *gorm.DB) error {
				n, err := del(tx, cutoff)
				deleted = n
				return err
			})
			return deleted, err
		},
	}
}

// NewRetentionJob prunes read notifications, relayed outbox rows and parked
// dead letters. A failing sweep does not stop the others.
func NewRetentionJob(logg *logger.Logger, sweeps ...Sweep) (Job, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if len(sweeps) == 0 {
		return nil, errors.New("at least one sweep required")
	}
	for _, sweep := range sweeps {
		if sweep.Name == "" || sweep.Delete == nil {
			return nil, errors.New("sweep needs a name and a delete func")
		}
		if sweep.Retention <= 0 {
			return nil, fmt.Errorf("sweep %s: retention must be positive", sweep.Name)
		}
	}
	return &retentionJob{logg: logg, sweeps: sweeps, now: time.Now}, nil
}

type retentionJob struct {
	logg   *logger.Logger
	sweeps []Sweep
	now    func() time.Time
}

func (j *retentionJob) Name() string { return "retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	for _, sweep := range j.sweeps {
		cutoff := now.Add(-sweep.Retention)
		deleted, err := sweep.Delete(ctx, cutoff)
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"sweep":        sweep.Name,
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		})
		if err != nil {
			j.logg.Error(logCtx, "retention sweep failed", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", sweep.Name, err))
			continue
		}
		if deleted > 0 {
			j.logg.Info(logCtx, "retention sweep complete")
		}
	}
	return errs
}
