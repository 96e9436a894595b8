package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const validMigration = `-- +goose Up
CREATE TABLE IF NOT EXISTS holds (id UUID PRIMARY KEY, amount BIGINT NOT NULL);

-- +goose Down
DROP TABLE IF EXISTS holds;
`

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	path, err := CreateSQLMigration(dir, "Add Payout Fee Index!", now)
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if got := filepath.Base(path); got != "20260302100000_add_payout_fee_index.sql" {
		t.Fatalf("unexpected filename %q", got)
	}
}

func TestCreateSQLMigrationStaysAfterLatestVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "20260401000000_future.sql", validMigration)

	path, err := CreateSQLMigration(dir, "late clock", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if got := filepath.Base(path); got != "20260401000001_late_clock.sql" {
		t.Fatalf("expected version after latest, got %q", got)
	}

	// A freshly created file still has a placeholder Down section.
	if _, err := CreateSQLMigration(dir, "second", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("second create: %v", err)
	}
}

func TestValidateDirRejectsFractionalMoneyColumns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "20260301000000_bad.sql", `-- +goose Up
-- amounts are numeric kobo
ALTER TABLE wallets ADD COLUMN hold_amount NUMERIC(12,2);

-- +goose Down
ALTER TABLE wallets DROP COLUMN hold_amount;
`)
	err := ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "BIGINT") {
		t.Fatalf("expected fractional type rejection, got %v", err)
	}
}

func TestValidateDirRejectsEmptyDown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "20260301000000_no_down.sql", `-- +goose Up
CREATE INDEX idx_orders_seller ON orders (seller_id);

-- +goose Down
-- nothing
`)
	if err := ValidateDir(dir); err == nil || !strings.Contains(err.Error(), "empty Down") {
		t.Fatalf("expected empty down rejection, got %v", err)
	}
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "20260301000000_a.sql", validMigration)
	writeFile(t, dir, "20260301000000_b.sql", validMigration)
	if err := ValidateDir(dir); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	embeddedNames, err := fs.Glob(Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	diskPaths, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	diskNames := make([]string, 0, len(diskPaths))
	for _, p := range diskPaths {
		diskNames = append(diskNames, filepath.Base(p))
	}
	sort.Strings(embeddedNames)
	sort.Strings(diskNames)
	if strings.Join(embeddedNames, ",") != strings.Join(diskNames, ",") {
		t.Fatalf("embedded %v differs from disk %v", embeddedNames, diskNames)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Add Payout Fee Index!": "add_payout_fee_index",
		"  --orders__v2-- ":     "orders_v2",
		"\u20a6\u20a6\u20a6":    "",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateSQLMigrationRejectsUnusableName(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), "!!!", time.Now()); err == nil {
		t.Fatal("expected error for name without usable characters")
	}
}
