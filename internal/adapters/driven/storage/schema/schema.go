// Package schema reads versioned migration scripts shared by the SQL
// storage backends. Scripts are named NNN_description.up.sql, with a
// matching .down.sql kept for manual rollback.
package schema

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Migration is one forward schema step.
type Migration struct {
	Version int
	Name    string
	Script  string
}

// Pending returns the up migrations in fsys newer than applied, ordered by
// version. Files without a numeric prefix are ignored.
func Pending(fsys fs.FS, applied int) ([]Migration, error) {
	names, err := upScripts(fsys)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for version, name := range names {
		if version <= applied {
			continue
		}
		script, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", name, err)
		}
		pending = append(pending, Migration{Version: version, Name: name, Script: string(script)})
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })
	return pending, nil
}

// Latest returns the highest version in fsys, or 0 when it has none.
func Latest(fsys fs.FS) (int, error) {
	names, err := upScripts(fsys)
	if err != nil {
		return 0, err
	}
	latest := 0
	for version := range names {
		latest = max(latest, version)
	}
	return latest, nil
}

// CheckApplied fails when the database was migrated by a newer build than
// the one holding fsys.
func CheckApplied(fsys fs.FS, applied int) error {
	latest, err := Latest(fsys)
	if err != nil {
		return err
	}
	if latest > 0 && applied > latest {
		return fmt.Errorf("database schema version %d is newer than supported version %d", applied, latest)
	}
	return nil
}

// upScripts maps version to file name for every up script in fsys.
func upScripts(fsys fs.FS) (map[int]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	names := make(map[int]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		names[version] = name
	}
	return names, nil
}
