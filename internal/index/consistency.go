package index

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/marcinmilkowski/metaindexer/internal/store"
)

// CheckResult lists disagreements between the manifest and the index.
type CheckResult struct {
	// Checked is the number of manifest records examined.
	Checked int `json:"checked"`
	// Orphans are index documents with no manifest record.
	Orphans []string `json:"orphans,omitempty"`
	// Missing are valid manifest records whose document is not indexed.
	Missing  []string      `json:"missing,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Consistent reports whether nothing was found.
func (c *CheckResult) Consistent() bool {
	return len(c.Orphans) == 0 && len(c.Missing) == 0
}

// ConsistencyChecker compares the manifest with the index. Invalid records
// are not expected in the index, since strict runs leave them out.
type ConsistencyChecker struct {
	index    *store.Index
	manifest *store.Manifest
}

// NewConsistencyChecker creates a checker.
func NewConsistencyChecker(index *store.Index, manifest *store.Manifest) *ConsistencyChecker {
	return &ConsistencyChecker{index: index, manifest: manifest}
}

// Check compares every manifest record with the index IDs.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	records, err := c.manifest.All(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := c.index.AllIDs(ctx)
	if err != nil {
		return nil, err
	}

	indexed := make(map[string]bool, len(ids))
	for _, id := range ids {
		indexed[id] = true
	}
	known := make(map[string]bool, len(records))

	result := &CheckResult{Checked: len(records)}
	for _, rec := range records {
		known[rec.Path] = true
		if rec.Valid && !indexed[rec.Path] {
			result.Missing = append(result.Missing, rec.Path)
		}
	}
	for _, id := range ids {
		if !known[id] {
			result.Orphans = append(result.Orphans, id)
		}
	}
	sort.Strings(result.Missing)
	result.Duration = time.Since(start)
	return result, nil
}

// Repair deletes orphaned documents and forgets missing records so the next
// run indexes those files again.
func (c *ConsistencyChecker) Repair(ctx context.Context, result *CheckResult) error {
	if len(result.Orphans) > 0 {
		if err := c.index.Delete(ctx, result.Orphans); err != nil {
			return err
		}
		slog.Info("deleted_orphan_documents", slog.Int("count", len(result.Orphans)))
	}
	if len(result.Missing) > 0 {
		if err := c.manifest.Delete(ctx, result.Missing...); err != nil {
			return err
		}
		slog.Info("forgot_missing_records", slog.Int("count", len(result.Missing)))
	}
	return nil
}
