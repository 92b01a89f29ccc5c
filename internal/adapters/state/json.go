package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// JSONReportStore implements core.ReportStore with one JSON file per report.
type JSONReportStore struct {
	dir string
	mu  sync.RWMutex
}

// NewJSONReportStore creates a store rooted at dir.
func NewJSONReportStore(dir string) (*JSONReportStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	return &JSONReportStore{dir: dir}, nil
}

// reportEnvelope wraps a report with metadata.
type reportEnvelope struct {
	Version   int                `json:"version"`
	Checksum  string             `json:"checksum"`
	UpdatedAt time.Time          `json:"updated_at"`
	Report    *core.ReportRecord `json:"report"`
}

var validReportID = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func (s *JSONReportStore) pathFor(id string) (string, error) {
	if !validReportID.MatchString(id) || strings.Trim(id, ".") == "" {
		return "", core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("invalid report id %q", id))
	}
	return filepath.Join(s.dir, id+".json"), nil
}

func checksum(rec *core.ReportRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Save writes a report atomically, replacing any previous version.
func (s *JSONReportStore) Save(_ context.Context, rec *core.ReportRecord) error {
	if rec == nil || rec.ID == "" {
		return core.ErrValidation(core.CodeInvalidConfig, "report id required")
	}
	path, err := s.pathFor(rec.ID)
	if err != nil {
		return err
	}

	sum, err := checksum(rec)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	data, err := json.MarshalIndent(reportEnvelope{
		Version:   1,
		Checksum:  sum,
		UpdatedAt: time.Now().UTC(),
		Report:    rec,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := atomicWriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}

// Get loads and verifies a report.
func (s *JSONReportStore) Get(_ context.Context, id string) (*core.ReportRecord, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadReport(path, id)
}

func loadReport(path, id string) (*core.ReportRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, core.ErrNotFound("report", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading report file: %w", err)
	}

	var env reportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, core.ErrReportCorrupted(id, "unreadable envelope").WithCause(err)
	}
	if env.Report == nil {
		return nil, core.ErrReportCorrupted(id, "envelope has no report")
	}
	sum, err := checksum(env.Report)
	if err != nil {
		return nil, fmt.Errorf("marshaling report for checksum: %w", err)
	}
	if sum != env.Checksum {
		return nil, core.ErrReportCorrupted(id, "checksum mismatch")
	}
	return env.Report, nil
}

// List returns reports newest first. Corrupted files are skipped.
func (s *JSONReportStore) List(ctx context.Context, filter core.ReportFilter) ([]*core.ReportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading report directory: %w", err)
	}

	reports := make([]*core.ReportRecord, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := loadReport(filepath.Join(s.dir, name), strings.TrimSuffix(name, ".json"))
		if err != nil {
			if core.GetCode(err) == core.CodeReportCorrupted {
				continue
			}
			return nil, err
		}
		if filter.Passed != nil && rec.Decision.Passed != *filter.Passed {
			continue
		}
		reports = append(reports, rec)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].CreatedAt.After(reports[j].CreatedAt)
		}
		return reports[i].ID < reports[j].ID
	})
	if filter.Limit > 0 && len(reports) > filter.Limit {
		reports = reports[:filter.Limit]
	}
	return reports, nil
}

// Path returns the report directory.
func (s *JSONReportStore) Path() string {
	return s.dir
}

// Close is a no-op.
func (s *JSONReportStore) Close() error {
	return nil
}

var _ core.ReportStore = (*JSONReportStore)(nil)
