// Package filelog implements the optional debug archive dumper (C11): when
// configured with a directory, the fetch orchestrator writes every unzipped
// document it ingests there for offline inspection. Nothing in the core
// depends on this data surviving; it exists purely for operators debugging a
// bank integration.
package filelog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Dumper writes fetched document entries to <dir>/<date>/<kind>-<segment>.xml.
type Dumper struct {
	dir string
}

// NewDumper builds a Dumper rooted at dir. The directory is created lazily
// on first Dump call, not here, so a Dumper can be constructed from
// configuration before its directory necessarily exists.
func NewDumper(dir string) *Dumper {
	return &Dumper{dir: dir}
}

// Dump writes one document entry. kind names the document kind
// (notification, status, acknowledgement, report, statement); segment
// disambiguates multiple entries unzipped from the same batch.
func (d *Dumper) Dump(at time.Time, kind string, segment int, data []byte) error {
	dateDir := filepath.Join(d.dir, at.UTC().Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return fmt.Errorf("filelog: create %s: %w", dateDir, err)
	}
	path := filepath.Join(dateDir, fmt.Sprintf("%s-%d.xml", kind, segment))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("filelog: write %s: %w", path, err)
	}
	return nil
}
