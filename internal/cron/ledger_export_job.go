package cron

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

const (
	ledgerExportCursorName   = "ledger"
	defaultLedgerExportBatch = 500
)

type ledgerSink interface {
	InsertLedgerRows(ctx context.Context, rows []bigquery.ValueSaver) error
}

type LedgerExportJobParams struct {
	Logger    *logger.Logger
	Store     ledgerExportStore
	Sink      ledgerSink
	BatchSize int
}

// NewLedgerExportJob streams settled ledger transactions to the analytics
// warehouse, resuming from the last exported (updated_at, reference) pair.
func NewLedgerExportJob(params LedgerExportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("ledger export store required")
	}
	if params.Sink == nil {
		return nil, fmt.Errorf("ledger sink required")
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultLedgerExportBatch
	}
	return &ledgerExportJob{
		logg:      params.Logger,
		store:     params.Store,
		sink:      params.Sink,
		batchSize: params.BatchSize,
	}, nil
}

type ledgerExportJob struct {
	logg      *logger.Logger
	store     ledgerExportStore
	sink      ledgerSink
	batchSize int
}

func (j *ledgerExportJob) Name() string { return "ledger-export" }

func (j *ledgerExportJob) Run(ctx context.Context) error {
	cursor, err := j.store.LoadCursor(ctx, ledgerExportCursorName)
	if err != nil {
		return fmt.Errorf("load export cursor: %w", err)
	}

	txns, err := j.store.ListSettledAfter(ctx, cursor, j.batchSize)
	if err != nil {
		return fmt.Errorf("list settled transactions: %w", err)
	}
	if len(txns) == 0 {
		return nil
	}

	rows := make([]bigquery.ValueSaver, 0, len(txns))
	for _, txn := range txns {
		rows = append(rows, NewLedgerRow(txn))
	}
	if err := j.sink.InsertLedgerRows(ctx, rows); err != nil {
		return fmt.Errorf("insert ledger rows: %w", err)
	}

	last := txns[len(txns)-1]
	cursor.LastUpdatedAt = last.UpdatedAt
	cursor.LastReference = last.Reference
	if err := j.store.SaveCursor(ctx, cursor); err != nil {
		return fmt.Errorf("save export cursor: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"exported":       len(txns),
		"last_reference": last.Reference,
	})
	j.logg.Info(logCtx, "ledger export batch complete")
	return nil
}

// LedgerRow is one transaction as stored in the warehouse ledger table.
type LedgerRow struct {
	txn models.Transaction
}

func NewLedgerRow(txn models.Transaction) LedgerRow {
	return LedgerRow{txn: txn}
}

// Save implements bigquery.ValueSaver. The insert id pairs the reference with
// its terminal status so replays are de-duplicated.
func (r LedgerRow) Save() (map[string]bigquery.Value, string, error) {
	txn := r.txn
	row := map[string]bigquery.Value{
		"reference":      txn.Reference,
		"kind":           string(txn.Kind),
		"status":         string(txn.Status),
		"amount":         txn.Amount,
		"currency":       txn.Currency,
		"from_account":   stringValue(txn.FromAccount),
		"to_account":     stringValue(txn.ToAccount),
		"initiator_id":   txn.InitiatorID.String(),
		"initiator_role": string(txn.InitiatorRole),
		"order_id":       uuidValue(txn.OrderID),
		"dispute_id":     uuidValue(txn.DisputeID),
		"payout_id":      uuidValue(txn.PayoutID),
		"description":    txn.Description,
		"source":         txn.Metadata.Source,
		"created_at":     txn.CreatedAt.In(time.UTC),
		"updated_at":     txn.UpdatedAt.In(time.UTC),
	}
	return row, txn.Reference + ":" + string(txn.Status), nil
}

func stringValue(v *string) bigquery.Value {
	if v == nil {
		return nil
	}
	return *v
}

func uuidValue(v *uuid.UUID) bigquery.Value {
	if v == nil {
		return nil
	}
	return v.String()
}
