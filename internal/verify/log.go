package verify

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogFilename is the per-acquisition verification history file. It is only
// ever appended to, never truncated or rewritten.
const LogFilename = "verification.log.jsonl"

// LogEntry is one recorded verification run.
type LogEntry struct {
	At            time.Time      `json:"at"`
	Action        string         `json:"action"`
	AcquisitionID string         `json:"acquisitionId"`
	Result        string         `json:"result"`
	Details       map[string]any `json:"details,omitempty"`
}

// Log appends verification history, one JSONL file per acquisition.
type Log struct {
	dirFor func(id string) string
}

// NewLog builds a Log that resolves acquisition directories through dirFor.
func NewLog(dirFor func(id string) string) *Log {
	return &Log{dirFor: dirFor}
}

// Append writes one entry to the acquisition's history.
func (l *Log) Append(entry LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	path := filepath.Join(l.dirFor(entry.AcquisitionID), LogFilename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open verification log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append verification log: %w", err)
	}
	return nil
}

// Entries reads the full history for an acquisition. A missing log is an
// empty history, not an error.
func (l *Log) Entries(id string) ([]LogEntry, error) {
	f, err := os.Open(filepath.Join(l.dirFor(id), LogFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open verification log: %w", err)
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return entries, fmt.Errorf("parse verification log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}
