package report_fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/davarch/pipeline-lineage/internal/domain"
)

// FSReport keeps the latest scan report as indented JSON at a fixed path.
// The file is replaced atomically so readers never see a partial report.
type FSReport struct {
	path string
}

func New(path string) *FSReport { return &FSReport{path: path} }

func (r *FSReport) Write(_ context.Context, rep domain.ScanReport) error {
	if r.path == "" {
		return errors.New("report path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}

	tmp := r.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if rep.Results == nil {
		rep.Results = []domain.Resolution{}
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}

	return os.Rename(tmp, r.path)
}

func Read(path string) (domain.ScanReport, error) {
	var rep domain.ScanReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
