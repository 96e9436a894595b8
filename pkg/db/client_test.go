package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/config"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

type escrowHold struct {
	ID        uint
	Reference string `gorm:"uniqueIndex:uq_escrow_holds_reference"`
	Amount    int64
}

func openTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.DBConfig{DSN: fmt.Sprintf("file:dbclient_%s?mode=memory&cache=shared", uuid.NewString())}
	client, err := New(context.Background(), cfg, true, nil)
	if err != nil {
		t.Fatalf("open sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := client.DB().AutoMigrate(&escrowHold{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}

func countHolds(t *testing.T, client *Client) int64 {
	t.Helper()
	var n int64
	if err := client.DB().Model(&escrowHold{}).Count(&n).Error; err != nil {
		t.Fatalf("count holds: %v", err)
	}
	return n
}

func TestWithTxCommitsOnlySuccessfulUnits(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&escrowHold{Reference: "CHK-1", Amount: 500_00}).Error
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	errInsufficient := errors.New("insufficient balance")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&escrowHold{Reference: "CHK-2", Amount: 900_00}).Error; err != nil {
			return err
		}
		return errInsufficient
	})
	if !errors.Is(err, errInsufficient) {
		t.Fatalf("expected callback error to surface, got %v", err)
	}
	if n := countHolds(t, client); n != 1 {
		t.Fatalf("expected only the committed hold, got %d rows", n)
	}
}

func TestWithTxRollsBackAndRepanics(t *testing.T) {
	client := openTestClient(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&escrowHold{Reference: "CHK-P", Amount: 1}).Error; err != nil {
				return err
			}
			panic("ledger invariant broken")
		})
	}()

	if n := countHolds(t, client); n != 0 {
		t.Fatalf("expected panic to roll back, got %d rows", n)
	}
}

func TestIsUniqueViolationMatchesConstraintColumn(t *testing.T) {
	client := openTestClient(t)
	conn := client.DB()
	if err := conn.Create(&escrowHold{Reference: "FND-dup"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := conn.Create(&escrowHold{Reference: "FND-dup"}).Error
	if err == nil {
		t.Fatal("expected duplicate reference to fail")
	}

	for _, name := range []string{"", "reference"} {
		if !IsUniqueViolation(err, name) {
			t.Fatalf("IsUniqueViolation(%q) = false for %v", name, err)
		}
	}
	if IsUniqueViolation(err, "amount") {
		t.Fatal("violation must not match an unrelated column")
	}
	if IsUniqueViolation(errors.New("connection reset by peer"), "") {
		t.Fatal("unrelated error reported as unique violation")
	}
}

func TestPingAndClose(t *testing.T) {
	client := openTestClient(t)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping on a closed pool to fail")
	}
}

func TestQueryLoggerReportsFailuresAndSlowStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	q := newQueryLogger(logger.New(logger.Options{ServiceName: "db-test", Format: logger.FormatJSON, Output: buf}), 100*time.Millisecond)
	debit := func() (string, int64) { return "UPDATE wallets SET balance = balance - 500 WHERE balance >= 500", 1 }

	q.Trace(context.Background(), time.Now(), debit, nil)
	q.Trace(context.Background(), time.Now(), debit, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("fast statements and misses should be silent, got %s", buf.String())
	}

	q.Trace(context.Background(), time.Now().Add(-time.Second), debit, nil)
	q.Trace(context.Background(), time.Now(), debit, errors.New("deadlock detected"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two entries, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"slow query"`) || !strings.Contains(lines[0], `"rows":1`) {
		t.Fatalf("unexpected slow entry %s", lines[0])
	}
	if !strings.Contains(lines[1], "deadlock detected") || !strings.Contains(lines[1], "UPDATE wallets") {
		t.Fatalf("unexpected failure entry %s", lines[1])
	}
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New(context.Background(), config.DBConfig{}, true, nil); err == nil {
		t.Fatal("expected missing DSN to fail")
	}
}
