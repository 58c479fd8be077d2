// Package migrations embeds the SQL schema migrations and validates their
// naming, pairing, and sequencing so a broken migration set fails at startup
// rather than against a live database.
package migrations

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embedded embed.FS

// Migration filename standard: 001_migration_name.up.sql / .down.sql.
var filenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// Info contains parsed information about one migration file.
type Info struct {
	Sequence  int
	Name      string
	Direction string // "up" or "down"
	Filename  string
	Checksum  string
}

// FS returns the embedded migration filesystem for golang-migrate's iofs source.
func FS() fs.FS {
	return embedded
}

// List returns the embedded migration filenames that conform to the naming
// standard, sorted. Non-conforming .sql files are an error, not silently
// skipped.
func List() ([]string, error) {
	entries, err := fs.ReadDir(embedded, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}

		if !filenameRegex.MatchString(entry.Name()) {
			return nil, fmt.Errorf("migration filename %q does not match NNN_name.(up|down).sql", entry.Name())
		}

		files = append(files, entry.Name())
	}

	sort.Strings(files)

	return files, nil
}

// Parse extracts the sequence, name, and direction of a migration filename
// and computes its content checksum.
func Parse(filename string) (*Info, error) {
	match := filenameRegex.FindStringSubmatch(filename)
	if match == nil {
		return nil, fmt.Errorf("invalid migration filename %q", filename)
	}

	sequence, err := strconv.Atoi(match[1])
	if err != nil {
		return nil, fmt.Errorf("invalid migration sequence in %q: %w", filename, err)
	}

	content, err := fs.ReadFile(embedded, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration %q: %w", filename, err)
	}

	return &Info{
		Sequence:  sequence,
		Name:      match[2],
		Direction: match[3],
		Filename:  filename,
		Checksum:  fmt.Sprintf("%x", sha256.Sum256(content)),
	}, nil
}

// Validate checks the embedded migration set: every up has a matching down,
// and sequences are contiguous starting at 1.
func Validate() error {
	files, err := List()
	if err != nil {
		return err
	}

	ups := map[int]string{}
	downs := map[int]string{}

	for _, filename := range files {
		info, err := Parse(filename)
		if err != nil {
			return err
		}

		if info.Direction == "up" {
			if existing, dup := ups[info.Sequence]; dup {
				return fmt.Errorf("duplicate up migration for sequence %03d: %s and %s", info.Sequence, existing, filename)
			}

			ups[info.Sequence] = filename
		} else {
			if existing, dup := downs[info.Sequence]; dup {
				return fmt.Errorf("duplicate down migration for sequence %03d: %s and %s", info.Sequence, existing, filename)
			}

			downs[info.Sequence] = filename
		}
	}

	if len(ups) == 0 {
		return fmt.Errorf("no embedded migrations found")
	}

	for sequence, filename := range ups {
		if _, ok := downs[sequence]; !ok {
			return fmt.Errorf("migration %s has no matching down migration", filename)
		}
	}

	for sequence, filename := range downs {
		if _, ok := ups[sequence]; !ok {
			return fmt.Errorf("migration %s has no matching up migration", filename)
		}
	}

	for i := 1; i <= len(ups); i++ {
		if _, ok := ups[i]; !ok {
			return fmt.Errorf("migration sequence is not contiguous: missing %03d", i)
		}
	}

	return nil
}
