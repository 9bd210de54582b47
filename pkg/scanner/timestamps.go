package scanner

import (
	"maps"
	"os"
	"slices"
	"time"

	"github.com/mevdschee/tqreload/pkg/unit"
)

// GetFileMtime returns the modification time of a file.
// Returns zero time if file doesn't exist or on error.
func GetFileMtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// HasFileChanged reports whether the unit file at path is newer than the
// recorded time, and returns the time it saw. A missing file never counts
// as changed and yields the zero time.
func HasFileChanged(path string, recorded time.Time) (bool, time.Time) {
	mtime := GetFileMtime(path)
	if mtime.IsZero() {
		return false, mtime
	}
	return mtime.After(recorded), mtime
}

// Request asks for one scan of the given units.
type Request struct {
	// MTimes maps unit names to the modification time seen last.
	MTimes map[string]time.Time
	// Origins maps unit names to their backing files.
	Origins map[string]string
}

// Result is the outcome of one scan.
type Result struct {
	// MTimes is the updated table to submit with the next request.
	MTimes map[string]time.Time
	// Dirty lists the units whose files are newer than recorded, sorted.
	Dirty []string
}

func (r Request) clone() Request {
	return Request{MTimes: maps.Clone(r.MTimes), Origins: maps.Clone(r.Origins)}
}

// Scan compares every unit's file against the table. Entry units, static
// origins and files that cannot be stat'ed are skipped; a unit seen for the
// first time is recorded without being reported.
func Scan(req Request) Result {
	table := maps.Clone(req.MTimes)
	if table == nil {
		table = make(map[string]time.Time)
	}
	var dirty []string
	for name, origin := range req.Origins {
		if unit.IsEntry(name) || unit.IsStatic(origin) {
			continue
		}
		recorded, seen := table[name]
		changed, mtime := HasFileChanged(origin, recorded)
		if mtime.IsZero() {
			continue
		}
		if !seen {
			table[name] = mtime
			continue
		}
		if changed {
			dirty = append(dirty, name)
			table[name] = mtime
		}
	}
	slices.Sort(dirty)
	return Result{MTimes: table, Dirty: dirty}
}
