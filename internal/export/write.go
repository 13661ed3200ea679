package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/trialkit/internal/experiment"
	"github.com/roach88/trialkit/internal/ir"
)

// WriteTable writes t as delimited text and returns the path written.
// Missing cells are written as empty strings.
func WriteTable(path string, t experiment.Table, opts Options) (string, error) {
	target, delim := ResolveTarget(path, opts)
	if delim == '"' || delim == '\r' || delim == '\n' || delim == 0xFFFD {
		return "", fmt.Errorf("export: invalid delimiter %q", delim)
	}

	f, target, writeHeader, err := openTable(target, opts)
	if err != nil {
		return "", err
	}

	w := csv.NewWriter(f)
	w.Comma = delim
	if writeHeader {
		if err := w.Write(t.Columns); err != nil {
			f.Close()
			return "", fmt.Errorf("export: write header: %w", err)
		}
	}
	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		for c := range record {
			var v ir.Value = ir.Missing{}
			if c < len(row) {
				v = row[c]
			}
			record[c] = ir.FormatValue(v)
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return "", fmt.Errorf("export: write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", fmt.Errorf("export: flush %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("export: close %s: %w", target, err)
	}

	slog.Debug("wrote table", "path", target, "rows", len(t.Rows), "columns", len(t.Columns))
	return target, nil
}

// openTable opens target for append or creation and reports whether the
// header still has to be written.
func openTable(target string, opts Options) (*os.File, string, bool, error) {
	if !opts.Append {
		f, name, err := create(target, opts.Collision)
		return f, name, true, err
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", false, fmt.Errorf("export: open %s: %w", target, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, "", false, fmt.Errorf("export: stat %s: %w", target, err)
	}
	return f, target, info.Size() == 0, nil
}

// WriteSnapshot writes v as indented JSON to path with the .psydat suffix
// and returns the path written. Append is ignored.
func WriteSnapshot(path string, v any, opts Options) (string, error) {
	if !strings.HasSuffix(path, SuffixPsydat) {
		path += SuffixPsydat
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshal snapshot: %w", err)
	}

	f, target, err := create(path, opts.Collision)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return "", fmt.Errorf("export: write %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("export: close %s: %w", target, err)
	}

	slog.Debug("wrote snapshot", "path", target, "bytes", len(data)+1)
	return target, nil
}
