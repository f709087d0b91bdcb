// Package report persists the summary of a packaging run
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/types"
)

// FileName is the report written into the logs directory
const FileName = "run-summary.json"

// RunReport is the on-disk form of a run result
type RunReport struct {
	*types.RunResult
	Succeeded   bool      `json:"succeeded"`
	Summary     string    `json:"summary"`
	ProcessID   int       `json:"processId"`
	Host        string    `json:"host,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// Writer writes run reports
type Writer struct {
	path   string
	logger logger.Logger
}

// NewWriter creates a writer for <logsDir>/run-summary.json
func NewWriter(logsDir string, log logger.Logger) *Writer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Writer{path: filepath.Join(logsDir, FileName), logger: log}
}

// Path returns the report file
func (w *Writer) Path() string {
	return w.path
}

// Write replaces the report with result
func (w *Writer) Write(result *types.RunResult) error {
	if result == nil {
		return fmt.Errorf("no run result")
	}
	host, _ := os.Hostname()
	rep := RunReport{
		RunResult:   result,
		Succeeded:   result.AllSucceeded(),
		Summary:     result.Summary(),
		ProcessID:   os.Getpid(),
		Host:        host,
		CompletedAt: time.Now(),
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	// Write atomically
	tempFile := w.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tempFile, w.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename report: %w", err)
	}

	w.logger.Debug("Wrote run report", logger.WithField("path", w.path))
	return nil
}

// Load reads a report written by Write
func Load(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rep := &RunReport{RunResult: &types.RunResult{}}
	if err := json.Unmarshal(data, rep); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return rep, nil
}
