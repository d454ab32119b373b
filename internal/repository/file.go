package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/task"
)

const fileFormatVersion = 1

type stateDocument struct {
	Version int             `json:"version"`
	Reports []runtimeRecord `json:"reports"`
}

// FileRepository keeps state in a JSON document. Writes go to a temporary
// file that is renamed over the canonical one, and the previous version is
// kept alongside with an .old suffix. Run history is appended to a JSON
// lines file next to it.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) *FileRepository {
	if path == "" {
		path = "ReportStatus.json"
	}
	return &FileRepository{path: path}
}

func (r *FileRepository) Path() string {
	return r.path
}

func (r *FileRepository) runsPath() string {
	return r.path + ".runs.jsonl"
}

// Load returns an empty set when the file does not exist yet.
func (r *FileRepository) Load(_ context.Context) (map[string]task.RuntimeInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Report status file not found; starting with empty state", tag.File(r.path))
		return map[string]task.RuntimeInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	return decodeDocument(data)
}

func (r *FileRepository) Save(_ context.Context, infos map[string]task.RuntimeInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := encodeDocument(infos)
	if err != nil {
		return err
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary status file: %w", err)
	}

	if _, err := os.Stat(r.path); err == nil {
		if err := copyFile(r.path, r.path+".old"); err != nil {
			slog.Warn("Failed to back up status file", tag.File(r.path), tag.Error(err))
		}
	}

	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace status file: %w", err)
	}
	return nil
}

func (r *FileRepository) RecordRun(_ context.Context, run RunRecord) error {
	line, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.runsPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Failed to close run history", tag.File(r.runsPath()), tag.Error(err))
		}
	}()

	_, err = f.Write(append(line, '\n'))
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (r *FileRepository) RecentRuns(_ context.Context, limit int) ([]RunRecord, error) {
	limit = runLimit(limit)

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.runsPath())
	if errors.Is(err, fs.ErrNotExist) {
		return []RunRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	defer func() { _ = f.Close() }()

	var runs []RunRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var run RunRecord
		if err := json.Unmarshal(line, &run); err != nil {
			slog.Debug("Skipping unreadable run record", tag.Error(err))
			continue
		}
		runs = append(runs, run)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run history: %w", err)
	}

	out := make([]RunRecord, 0, min(limit, len(runs)))
	for i := len(runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, runs[i])
	}
	return out, nil
}

func (r *FileRepository) Close() error {
	return nil
}

func encodeDocument(infos map[string]task.RuntimeInfo) ([]byte, error) {
	doc := stateDocument{Version: fileFormatVersion, Reports: toRecords(infos)}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status document: %w", err)
	}
	return append(data, '\n'), nil
}

// decodeDocument keeps the first record when a report name repeats.
func decodeDocument(data []byte) (map[string]task.RuntimeInfo, error) {
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse status file: %w", err)
	}

	infos := make(map[string]task.RuntimeInfo, len(doc.Reports))
	for _, rec := range doc.Reports {
		if rec.Name == "" {
			continue
		}
		if _, dup := infos[rec.Name]; dup {
			slog.Warn("Duplicate report in status file; keeping the first entry", tag.Report(rec.Name))
			continue
		}
		info, err := rec.info()
		if err != nil {
			slog.Warn("Ignoring unreadable status entry", tag.Report(rec.Name), tag.Error(err))
			continue
		}
		infos[rec.Name] = info
	}
	return infos, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
