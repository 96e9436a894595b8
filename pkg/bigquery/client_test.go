package bigquery

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/escrow-backend/pkg/config"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "escrow", LedgerTable: "ledger"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
	gcp := config.GCPConfig{ProjectID: "escrow-dev"}
	if _, err := NewClient(ctx, gcp, config.BigQueryConfig{LedgerTable: "ledger"}, nil); !errors.Is(err, errDatasetRequired) {
		t.Fatalf("expected dataset error, got %v", err)
	}
	if _, err := NewClient(ctx, gcp, config.BigQueryConfig{Dataset: "escrow", LedgerTable: "  "}, nil); !errors.Is(err, errTableNameRequired) {
		t.Fatalf("expected table error, got %v", err)
	}
}

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	gcp := config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	}
	if opts := clientOptions(gcp); len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
}

func TestClientOptionsEmpty(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected 0 options when no credentials provided, got %d", len(opts))
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if err := c.Ping(context.Background()); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.InsertLedgerRows(context.Background(), nil); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(&googleapi.Error{Code: http.StatusNotFound}) {
		t.Fatal("expected 404 to be not found")
	}
	if isNotFound(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Fatal("expected 403 to be found")
	}
	if isNotFound(errors.New("boom")) {
		t.Fatal("expected plain error to be found")
	}
}

func TestRowsErrorSummarisesPartialFailures(t *testing.T) {
	multi := bigquery.PutMultiError{
		{RowIndex: 3, Errors: bigquery.MultiError{errors.New("no such field: fee")}},
		{RowIndex: 7, Errors: bigquery.MultiError{errors.New("invalid timestamp")}},
	}
	err := newRowsError(10, multi)
	if err.Total != 10 || len(err.Failed) != 2 || err.Failed[1] != 7 {
		t.Fatalf("unexpected summary %+v", err)
	}
	if !strings.Contains(err.Error(), "2 of 10") || !strings.Contains(err.Error(), "no such field: fee") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestLedgerTableMetadataPartitionsBySettlementDay(t *testing.T) {
	meta := ledgerTableMetadata()
	if meta.TimePartitioning == nil || meta.TimePartitioning.Field != "updated_at" {
		t.Fatalf("expected day partitioning on updated_at, got %+v", meta.TimePartitioning)
	}
	seen := map[string]bool{}
	for _, field := range meta.Schema {
		if seen[field.Name] {
			t.Fatalf("duplicate column %s", field.Name)
		}
		seen[field.Name] = true
	}
	for _, required := range []string{"reference", "amount", "updated_at", meta.Clustering.Fields[0]} {
		if !seen[required] {
			t.Fatalf("schema missing %s", required)
		}
	}
}
