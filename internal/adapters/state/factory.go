package state

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// Supported report backends.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// NewReportStore creates a report store for the given backend. For sqlite,
// path is the database file and gets a .db extension if it has none; for
// json it is the directory holding one file per report.
func NewReportStore(backend, path string) (core.ReportStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "report path required")
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendSQLite:
		if filepath.Ext(path) == "" {
			path += ".db"
		}
		return NewSQLiteReportStore(path)
	case BackendJSON:
		return NewJSONReportStore(path)
	default:
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("unknown report backend %q (want %s or %s)", backend, BackendSQLite, BackendJSON))
	}
}

// Backends lists the supported backends.
func Backends() []string {
	return []string{BackendSQLite, BackendJSON}
}
