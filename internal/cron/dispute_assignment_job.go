package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

const defaultAssignmentBatchSize = 50

type DisputeAssignmentJobParams struct {
	Logger    *logger.Logger
	Disputes  disputeAssigner
	BatchSize int
}

type disputeAssigner interface {
	AssignPending(ctx context.Context, limit int) (int, error)
}

// NewDisputeAssignmentJob retries staff assignment for disputes that were
// opened while no agent had capacity.
func NewDisputeAssignmentJob(params DisputeAssignmentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Disputes == nil {
		return nil, fmt.Errorf("dispute assigner required")
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultAssignmentBatchSize
	}
	return &disputeAssignmentJob{
		logg:      params.Logger,
		disputes:  params.Disputes,
		batchSize: params.BatchSize,
	}, nil
}

type disputeAssignmentJob struct {
	logg      *logger.Logger
	disputes  disputeAssigner
	batchSize int
}

func (j *disputeAssignmentJob) Name() string { return "dispute-assignment" }

func (j *disputeAssignmentJob) Run(ctx context.Context) error {
	assigned, err := j.disputes.AssignPending(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("assign pending disputes: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "assigned", assigned), "dispute assignment sweep complete")
	return nil
}
