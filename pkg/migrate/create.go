package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s: money columns are BIGINT kobo
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- undo %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration named
// <dir>/<version>_<slug>.sql and returns its path. The version is later
// than every migration already in dir even when the local clock lags.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	existing, err := listVersions(dir, false)
	if err != nil {
		return "", err
	}
	version, err := nextVersion(existing, now)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, version+"_"+slug+".sql")
	// O_EXCL keeps a concurrent create from clobbering the file.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, migrationTemplate, slug); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

func slugify(name string) string {
	slug := nonSlugRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}

func nextVersion(existing []string, now time.Time) (string, error) {
	next := now.UTC().Truncate(time.Second)
	if len(existing) == 0 {
		return next.Format(versionLayout), nil
	}
	latest, err := time.Parse(versionLayout, existing[len(existing)-1])
	if err != nil {
		return "", fmt.Errorf("parse latest version %q: %w", existing[len(existing)-1], err)
	}
	if !next.After(latest) {
		next = latest.Add(time.Second)
	}
	return next.Format(versionLayout), nil
}
