// Package reclaimer implements mark-and-sweep cleanup of upload
// storage. Mark collects the file ids referenced by any course record;
// sweep finds registry entries outside that set and files on disk with
// no registry entry. Dry-run is the default; nothing is removed unless
// the caller opts in.
package reclaimer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/tutorlink/backend/internal/knowledge"
	"github.com/tutorlink/backend/internal/logging"
	"github.com/tutorlink/backend/internal/monitoring"
	"github.com/tutorlink/backend/internal/registry"
)

// Candidate is one orphan found during the sweep.
type Candidate struct {
	// FileID is set for registry orphans, empty for disk orphans.
	FileID string `json:"file_id,omitempty"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
}

// Failure records one candidate that could not be reclaimed. Failures
// never abort the run.
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report is the outcome of one reclaim run.
type Report struct {
	DryRun          bool        `json:"dry_run"`
	RegistryOrphans []Candidate `json:"registry_orphans"`
	DiskOrphans     []Candidate `json:"disk_orphans"`
	Failures        []Failure   `json:"failures"`
	ReclaimedBytes  int64       `json:"reclaimed_bytes"`
}

// Reclaimer scans the registry and the upload root against the
// knowledge-base index.
type Reclaimer struct {
	log       zerolog.Logger
	registry  registry.Store
	knowledge knowledge.Index
	uploadDir string
}

// New wires a Reclaimer over the given stores and upload root.
func New(reg registry.Store, idx knowledge.Index, uploadDir string) *Reclaimer {
	return &Reclaimer{
		log:       logging.NewLogger("reclaimer"),
		registry:  reg,
		knowledge: idx,
		uploadDir: uploadDir,
	}
}

// Run performs one mark-and-sweep pass. With execute false it only
// reports; with execute true it deletes each orphan, removing the file
// from disk before its registry entry so a crash between the two steps
// leaves a registry orphan for the next run rather than an unreferenced
// file. A second run over an unchanged system finds nothing.
func (r *Reclaimer) Run(ctx context.Context, execute bool) (*Report, error) {
	reachable, err := r.knowledge.ReachableFileIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect reachable set: %w", err)
	}

	files, err := r.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry: %w", err)
	}

	report := &Report{DryRun: !execute}
	registered := make(map[string]struct{}, len(files))

	for _, file := range files {
		registered[filepath.Clean(file.FilePath)] = struct{}{}
		if _, ok := reachable[file.ID]; ok {
			continue
		}
		report.RegistryOrphans = append(report.RegistryOrphans, Candidate{
			FileID: file.ID,
			Path:   file.FilePath,
			Size:   file.FileSize,
		})
	}

	diskOrphans, err := r.sweepDisk(registered)
	if err != nil {
		return nil, err
	}
	report.DiskOrphans = diskOrphans

	if execute {
		r.reclaim(ctx, report)
	}

	monitoring.RecordReclaimRun(len(report.RegistryOrphans), len(report.DiskOrphans), execute, report.ReclaimedBytes)
	logging.LogReclaim(report.DryRun, len(report.RegistryOrphans), len(report.DiskOrphans), len(report.Failures), report.ReclaimedBytes)
	return report, nil
}

// sweepDisk walks the upload root for files no registry entry points
// at. A missing upload root is an empty sweep, not an error.
func (r *Reclaimer) sweepDisk(registered map[string]struct{}) ([]Candidate, error) {
	var orphans []Candidate

	err := filepath.WalkDir(r.uploadDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := registered[filepath.Clean(path)]; ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		orphans = append(orphans, Candidate{Path: path, Size: info.Size()})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to sweep upload root: %w", err)
	}
	return orphans, nil
}

func (r *Reclaimer) reclaim(ctx context.Context, report *Report) {
	for _, candidate := range report.RegistryOrphans {
		if err := os.Remove(candidate.Path); err != nil && !os.IsNotExist(err) {
			report.Failures = append(report.Failures, Failure{Path: candidate.Path, Reason: err.Error()})
			continue
		}
		if err := r.registry.Delete(ctx, candidate.FileID); err != nil {
			report.Failures = append(report.Failures, Failure{Path: candidate.Path, Reason: err.Error()})
			continue
		}
		report.ReclaimedBytes += candidate.Size
		r.log.Info().Str("file_id", candidate.FileID).Str("path", candidate.Path).Msg("Reclaimed registry orphan")
	}

	for _, candidate := range report.DiskOrphans {
		if err := os.Remove(candidate.Path); err != nil && !os.IsNotExist(err) {
			report.Failures = append(report.Failures, Failure{Path: candidate.Path, Reason: err.Error()})
			continue
		}
		report.ReclaimedBytes += candidate.Size
		r.log.Info().Str("path", candidate.Path).Msg("Reclaimed disk orphan")
	}
}
