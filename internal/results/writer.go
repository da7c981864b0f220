package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
)

// Writer appends terminal attempt results to the success and failure JSONL
// logs and overwrites the progress snapshot. One JSON document per line;
// every line is self-contained so a partially written run still parses up
// to the last complete line.
type Writer struct {
	mu           sync.Mutex
	successFile  *os.File
	failureFile  *os.File
	snapshotPath string
}

// NewWriter opens the result logs in append mode, creating the results
// directory when needed
func NewWriter(cfg *common.ResultsConfig) (*Writer, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results dir %s: %w", cfg.Dir, err)
	}

	successFile, err := os.OpenFile(filepath.Join(cfg.Dir, cfg.SuccessFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open success log: %w", err)
	}

	failureFile, err := os.OpenFile(filepath.Join(cfg.Dir, cfg.FailureFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		successFile.Close()
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}

	return &Writer{
		successFile:  successFile,
		failureFile:  failureFile,
		snapshotPath: filepath.Join(cfg.Dir, cfg.SnapshotFile),
	}, nil
}

// Record appends one attempt result to the matching log
func (w *Writer) Record(result *models.AttemptResult) error {
	line, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result for %s: %w", result.Domain, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	target := w.failureFile
	if result.Success {
		target = w.successFile
	}
	if _, err := target.Write(line); err != nil {
		return fmt.Errorf("failed to append result for %s: %w", result.Domain, err)
	}
	return nil
}

// WriteSnapshot overwrites the progress snapshot file. Written atomically
// via rename so a crash mid-write never leaves a truncated snapshot.
func (w *Writer) WriteSnapshot(snapshot *models.ProgressSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tmpPath := w.snapshotPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, w.snapshotPath); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Close flushes and closes both logs
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for _, f := range []*os.File{w.successFile, w.failureFile} {
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReadResults parses a JSONL result log. Malformed lines are skipped so a
// log truncated by a crash still yields everything before the tear.
func ReadResults(path string) ([]models.AttemptResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result log %s: %w", path, err)
	}
	defer f.Close()

	var out []models.AttemptResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var result models.AttemptResult
		if err := json.Unmarshal(line, &result); err != nil {
			continue
		}
		out = append(out, result)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read result log %s: %w", path, err)
	}

	return out, nil
}

// ExtractRetryList returns the unique failed domains from a failure log,
// in first-seen order, ready to feed back in as a domains file
func ExtractRetryList(failurePath string) ([]string, error) {
	failures, err := ReadResults(failurePath)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(failures))
	var domains []string
	for _, f := range failures {
		if f.Success || seen[f.Domain] {
			continue
		}
		seen[f.Domain] = true
		domains = append(domains, f.Domain)
	}

	return domains, nil
}
