// Package export writes the reconciled candidate view as CSV. Every field is
// quoted, including numbers, with embedded quotes doubled. The stdlib
// encoding/csv writer quotes only when required, so the row formatting is
// done by hand here.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/agentstation/utc"
	"github.com/spf13/afero"

	"github.com/aviarylabs/rangesync/pkg/errors"
	"github.com/aviarylabs/rangesync/pkg/reconcile"
)

var header = []string{"Common Name", "Scientific Name", "Score", "Included", "Configured"}

// Filename returns the export file name for the given date, for example
// species-range-2026-08-29.csv.
func Filename(at utc.Time) string {
	return fmt.Sprintf("species-range-%s.csv", at.Format("2006-01-02"))
}

// Write renders the snapshot's candidates, in their displayed order, to w.
func Write(w io.Writer, snapshot *reconcile.Snapshot) error {
	if snapshot == nil {
		return errors.New("no snapshot to export")
	}
	if err := writeRow(w, header); err != nil {
		return err
	}
	for _, c := range snapshot.Items {
		row := []string{
			c.CommonName,
			c.ScientificName,
			strconv.FormatFloat(c.Score, 'f', -1, 64),
			strconv.FormatBool(c.ManuallyIncluded),
			strconv.FormatBool(c.HasOverride),
		}
		if err := writeRow(w, row); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes the snapshot to dir on fs under a name stamped with the
// export date, not the snapshot's computation date, and returns the path
// used.
func WriteFile(fs afero.Fs, dir string, snapshot *reconcile.Snapshot) (string, error) {
	if snapshot == nil {
		return "", errors.New("no snapshot to export")
	}
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", errors.WrapIO("export", dir, err)
	}
	path := dir + "/" + Filename(utc.Now())
	f, err := fs.Create(path)
	if err != nil {
		return "", errors.WrapIO("export", path, err)
	}
	defer f.Close()

	if err := Write(f, snapshot); err != nil {
		return "", errors.WrapIO("export", path, err)
	}
	return path, nil
}

// writeRow emits one CSV record with every field quoted.
func writeRow(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}
