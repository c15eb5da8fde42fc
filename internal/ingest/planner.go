package ingest

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// PlanInput is one classified file ready for planning.
type PlanInput struct {
	File           ScannedFile
	Classification *Classification
	Metadata       Metadata
}

// OrganizationPlanner computes destinations in the organized archive.
// It performs no I/O.
type OrganizationPlanner struct {
	resolver *DeviceResolver
	similar  SimilarPolicy
}

func NewOrganizationPlanner(resolver *DeviceResolver, similar SimilarPolicy) *OrganizationPlanner {
	if similar == "" {
		similar = SimilarTreatAsNew
	}
	return &OrganizationPlanner{resolver: resolver, similar: similar}
}

// Plan returns one operation per input, sorted by source path. When
// archiveRoot is empty no destinations are assigned.
func (p *OrganizationPlanner) Plan(inputs []PlanInput, eventName, archiveRoot string) ([]*FileOperation, error) {
	sorted := make([]PlanInput, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].File.Path < sorted[j].File.Path })

	event := sanitizeEvent(eventName)
	taken := make(map[string]bool)
	ops := make([]*FileOperation, 0, len(sorted))

	for _, in := range sorted {
		if in.Classification == nil {
			return nil, &PlanningError{Path: in.File.Path, Reason: "file was not classified"}
		}
		if in.File.Path == "" {
			return nil, &PlanningError{Path: "<empty>", Reason: "source path is empty"}
		}

		captured, estimated := in.Metadata.CaptureTime(in.File.ModTime)
		op := &FileOperation{
			Source:         in.File,
			DeviceCode:     p.resolver.Resolve(in.Metadata),
			Status:         in.Classification.Status,
			DuplicateOf:    in.Classification.DuplicateOf,
			CaptureDate:    captured,
			DateEstimated:  estimated,
			ExactHash:      in.Classification.ExactHash,
			PerceptualHash: in.Classification.PerceptualHash,
			Metadata:       in.Metadata,
		}

		if archiveRoot != "" && p.wantsDestination(op.Status) {
			dir := filepath.Join(archiveRoot, captured.Format("2006"), eventDir(captured.Format("2006-01-02"), event), op.DeviceCode)
			op.DestPath = uniqueInPlan(filepath.Join(dir, filepath.Base(in.File.Path)), taken)
			op.Kind = KindOrganized
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (p *OrganizationPlanner) wantsDestination(status DuplicateStatus) bool {
	switch status {
	case StatusNew:
		return true
	case StatusSimilar:
		return p.similar == SimilarTreatAsNew
	}
	return false
}

func eventDir(date, event string) string {
	if event == "" {
		return date
	}
	return date + "_" + event
}

func sanitizeEvent(name string) string {
	name = invalidPathChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = separatorRuns.ReplaceAllString(name, "_")
	return strings.Trim(name, "_.")
}

// uniqueInPlan returns path, or path with a _NN suffix when an earlier
// operation in the same plan already claimed it. Comparison is
// case-insensitive so plans are portable to case-folding filesystems.
func uniqueInPlan(path string, taken map[string]bool) string {
	candidate := path
	for n := 1; taken[strings.ToLower(candidate)]; n++ {
		candidate = withSuffix(path, n)
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}

// withSuffix inserts _NN before the extension.
func withSuffix(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%02d%s", strings.TrimSuffix(path, ext), n, ext)
}
