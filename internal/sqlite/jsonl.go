package sqlite

// JSONL export and import. Each declared table maps to <table>.jsonl in a
// directory, one JSON object per line keyed by column name. Writes are atomic
// (temp file, fsync, rename).

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// FileExt is the extension of table files.
const FileExt = ".jsonl"

// TableFile returns the JSONL path for table in dir.
func TableFile(dir, table string) string {
	return filepath.Join(dir, table+FileExt)
}

// ExportJSONL writes every row of every declared table to dir, one file per
// table. It returns the number of rows written.
func (s *Store) ExportJSONL(ctx context.Context, q types.Querier, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", dir, err)
	}
	total := 0
	for i := range s.schema.Tables {
		t := &s.schema.Tables[i]
		rs, err := s.selectRecords(ctx, q, t, nil, "")
		if err != nil {
			return total, err
		}
		g, _ := rs.Group(t.Name)

		lines := make([]json.RawMessage, 0, g.Len())
		for _, r := range g.Records() {
			line, err := EncodeRecord(r)
			if err != nil {
				return total, fmt.Errorf("encoding %s: %w", r, err)
			}
			lines = append(lines, line)
		}
		path := TableFile(dir, t.Name)
		if err := writeJSONL(path, lines); err != nil {
			return total, err
		}
		s.logger.Info("table exported", "table", t.Name, "rows", len(lines), "path", path)
		total += len(lines)
	}
	return total, nil
}

// ImportJSONL reads the table files in dir and saves their rows through q.
// Missing files are skipped. Malformed lines, lines without a primary key and
// fields that are not declared columns are dropped with a warning. It
// returns the number of rows saved.
func (s *Store) ImportJSONL(ctx context.Context, q types.Querier, dir string) (int, error) {
	rs := types.NewRecordSet()
	for i := range s.schema.Tables {
		t := &s.schema.Tables[i]
		path := TableFile(dir, t.Name)
		lines, skipped, err := readJSONL(path)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("no table file", "table", t.Name, "path", path)
			continue
		}
		if err != nil {
			return 0, err
		}
		if skipped > 0 {
			s.logger.Warn("skipped malformed lines", "path", path, "lines", skipped)
		}
		for n, line := range lines {
			r, dropped, err := DecodeRecord(t, line)
			if err != nil {
				s.logger.Warn("skipped record", "path", path, "record", n+1, "error", err)
				continue
			}
			if len(dropped) > 0 {
				s.logger.Warn("dropped undeclared fields", "path", path, "record", n+1, "fields", dropped)
			}
			rs.MergeRecord(r)
		}
	}
	if err := s.SaveRecordSet(ctx, q, rs); err != nil {
		return 0, err
	}
	return rs.Len(), nil
}

// EncodeRecord renders r as one JSON object keyed by column.
func EncodeRecord(r *types.Record) (json.RawMessage, error) {
	obj := make(map[string]types.Value, r.Len())
	for _, c := range r.Columns() {
		v, _ := r.Get(c)
		obj[c] = v
	}
	return json.Marshal(obj)
}

// DecodeRecord turns one JSON object into a record of t. Fields that are not
// columns of t are returned in dropped.
func DecodeRecord(t *types.Table, line json.RawMessage) (*types.Record, []string, error) {
	var obj map[string]types.Value
	if err := json.Unmarshal(line, &obj); err != nil {
		return nil, nil, err
	}
	id, ok := obj[t.PrimaryKey]
	if !ok || id.IsNull() {
		return nil, nil, fmt.Errorf("missing primary key %s", t.PrimaryKey)
	}
	r := types.NewRecord(t.Name, id)
	for _, c := range t.Columns {
		if v, ok := obj[c.Name]; ok {
			r.Put(c.Name, v)
		}
	}
	var dropped []string
	for field := range obj {
		if !t.HasColumn(field) {
			dropped = append(dropped, field)
		}
	}
	return r, dropped, nil
}

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage along with the number of malformed lines skipped.
func readJSONL(path string) ([]json.RawMessage, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			skipped++
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, skipped, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	fail := func(format string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf(format, err)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
