package report

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	corereport "github.com/kilianp07/fleetsim/core/report"
)

// JSONLConfig configures a rotating JSONL report file.
type JSONLConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// SetDefaults fills zero values.
func (c *JSONLConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "reports/reports.jsonl"
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 100
	}
}

// JSONLHandler writes one JSON object per report, rotating files by size.
type JSONLHandler struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewJSONLHandler creates the directory of cfg.Path if needed.
func NewJSONLHandler(cfg JSONLConfig) (*JSONLHandler, error) {
	cfg.SetDefaults()
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &JSONLHandler{logger: lj, path: cfg.Path}, nil
}

// Handle appends the batch, one line per report.
func (h *JSONLHandler) Handle(_ context.Context, b corereport.Batch) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := bufio.NewWriter(h.logger)
	enc := json.NewEncoder(w)
	for _, rec := range records(b) {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Query reads the current file and any uncompressed backups, oldest first.
func (h *JSONLHandler) Query(_ context.Context, q Query) ([]Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ext := filepath.Ext(h.path)
	files, err := filepath.Glob(strings.TrimSuffix(h.path, ext) + "*" + ext)
	if err != nil {
		return nil, err
	}
	// backups carry a timestamp after a dash, which sorts before the live file
	sort.Strings(files)
	var res []Record
	for _, f := range files {
		file, err := os.Open(f)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			var r Record
			if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
				continue
			}
			if q.match(r) {
				res = append(res, r)
			}
		}
		_ = file.Close()
	}
	return res, nil
}

// Close closes the underlying writer.
func (h *JSONLHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logger.Close()
}
