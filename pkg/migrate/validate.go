package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

	// Amounts are stored as integer kobo; fractional column types are
	// rejected outright.
	fractionalTypeRe = regexp.MustCompile(`(?i)\b(numeric|decimal|real|double\s+precision|float[48]?|money)\b`)
)

// ValidateDir checks migration filenames, goose headers, and column types.
func ValidateDir(dir string) error {
	_, err := listVersions(dir, true)
	return err
}

// listVersions checks filenames in dir, and content when checkContent is
// set, returning the migration versions in order.
func listVersions(dir string, checkContent bool) ([]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	versions := []string{}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		version := m[1]
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name
		versions = append(versions, version)
		if !checkContent {
			continue
		}

		full := filepath.Join(dir, name)
		b, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", full, err)
		}
		if err := validateContent(name, string(b)); err != nil {
			return nil, err
		}
	}

	sort.Strings(versions)
	return versions, nil
}

func validateContent(name, txt string) error {
	upIdx := strings.Index(txt, "-- +goose Up")
	if upIdx < 0 {
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	}
	downIdx := strings.Index(txt, "-- +goose Down")
	if downIdx < 0 {
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	}
	if downIdx < upIdx {
		return fmt.Errorf("migration %q has Down before Up", name)
	}
	if !hasStatement(txt[downIdx:]) {
		return fmt.Errorf("migration %q has an empty Down section", name)
	}

	for i, line := range strings.Split(txt[upIdx:downIdx], "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		if m := fractionalTypeRe.FindString(line); m != "" {
			return fmt.Errorf("migration %q uses fractional type %q in Up section line %d; store kobo as BIGINT", name, m, i+1)
		}
	}
	return nil
}

func hasStatement(section string) bool {
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
			return true
		}
	}
	return false
}
