package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/escrow-backend/pkg/config"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// LedgerSchema is the warehouse copy of a settled ledger transaction. Column
// names match the keys written by the ledger export rows.
var LedgerSchema = bigquery.Schema{
	{Name: "reference", Type: bigquery.StringFieldType, Required: true},
	{Name: "kind", Type: bigquery.StringFieldType, Required: true},
	{Name: "status", Type: bigquery.StringFieldType, Required: true},
	{Name: "amount", Type: bigquery.IntegerFieldType, Required: true, Description: "minor units (kobo)"},
	{Name: "currency", Type: bigquery.StringFieldType, Required: true},
	{Name: "from_account", Type: bigquery.StringFieldType},
	{Name: "to_account", Type: bigquery.StringFieldType},
	{Name: "initiator_id", Type: bigquery.StringFieldType},
	{Name: "initiator_role", Type: bigquery.StringFieldType},
	{Name: "order_id", Type: bigquery.StringFieldType},
	{Name: "dispute_id", Type: bigquery.StringFieldType},
	{Name: "payout_id", Type: bigquery.StringFieldType},
	{Name: "description", Type: bigquery.StringFieldType},
	{Name: "source", Type: bigquery.StringFieldType},
	{Name: "created_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "updated_at", Type: bigquery.TimestampFieldType, Required: true},
}

// Client streams settled ledger rows into the analytics dataset.
type Client struct {
	client *bigquery.Client
	ledger *bigquery.Table
}

// NewClient connects to BigQuery and checks that the dataset and ledger
// table exist. With cfg.CreateTable a missing table is created from
// LedgerSchema.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	tableID := strings.TrimSpace(cfg.LedgerTable)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	case tableID == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	client := &Client{client: bq, ledger: bq.Dataset(datasetID).Table(tableID)}

	created, err := client.ensureLedgerTable(ctx, cfg.CreateTable)
	if err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset":       datasetID,
			"ledger_table":  tableID,
			"table_created": created,
		}), "bigquery client initialized")
	}
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if file := strings.TrimSpace(gcp.ApplicationCredentials); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

// ensureLedgerTable reports whether it had to create the table.
func (c *Client) ensureLedgerTable(ctx context.Context, create bool) (bool, error) {
	if c == nil || c.ledger == nil {
		return false, errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	_, err := c.ledger.Metadata(ctx)
	switch {
	case err == nil:
		return false, nil
	case !isNotFound(err):
		return false, fmt.Errorf("check table %s.%s: %w", c.ledger.DatasetID, c.ledger.TableID, err)
	case !create:
		return false, fmt.Errorf("table %s.%s does not exist", c.ledger.DatasetID, c.ledger.TableID)
	}

	err = c.ledger.Create(ctx, ledgerTableMetadata())
	if err != nil {
		return false, fmt.Errorf("create table %s.%s: %w", c.ledger.DatasetID, c.ledger.TableID, err)
	}
	return true, nil
}

// ledgerTableMetadata partitions by settlement day and clusters by kind so
// reconciliation queries scan one day of one kind.
func ledgerTableMetadata() *bigquery.TableMetadata {
	return &bigquery.TableMetadata{
		Schema:      LedgerSchema,
		Description: "Settled escrow ledger transactions",
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "updated_at",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"kind", "status"}},
	}
}

// Ping checks the ledger table is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ensureLedgerTable(ctx, false)
	return err
}

// InsertLedgerRows streams rows into the ledger table. Each row supplies its
// own insert id, so a replayed batch is de-duplicated by BigQuery. Partial
// failures are summarised as a RowsError.
func (c *Client) InsertLedgerRows(ctx context.Context, rows []bigquery.ValueSaver) error {
	if c == nil || c.ledger == nil {
		return errClientNotInitialized
	}
	if len(rows) == 0 {
		return nil
	}
	err := c.ledger.Inserter().Put(ctx, rows)
	var multi bigquery.PutMultiError
	if errors.As(err, &multi) {
		return newRowsError(len(rows), multi)
	}
	return err
}

// RowsError reports rows BigQuery rejected from an otherwise accepted batch.
type RowsError struct {
	Total  int
	Failed []int
	First  error
}

func newRowsError(total int, multi bigquery.PutMultiError) *RowsError {
	out := &RowsError{Total: total}
	for _, rowErr := range multi {
		out.Failed = append(out.Failed, rowErr.RowIndex)
		if out.First == nil && len(rowErr.Errors) > 0 {
			out.First = rowErr.Errors[0]
		}
	}
	return out
}

func (e *RowsError) Error() string {
	return fmt.Sprintf("bigquery rejected %d of %d rows (first: %v)", len(e.Failed), e.Total, e.First)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
