package results

import (
	"context"
	"fmt"
	"time"
)

// ReconciliationReport contains the results of a catalog-storage reconciliation.
type ReconciliationReport struct {
	// DanglingRecords are catalog ids whose payloads are missing from storage.
	DanglingRecords []DanglingRecord
	// OrphanedObjects are payloads with no catalog record.
	OrphanedObjects []string
	// TotalRecords is the number of catalog records checked.
	TotalRecords int
	// TotalObjects is the number of storage objects scanned.
	TotalObjects int
	// RunAt is when the reconciliation was performed.
	RunAt time.Time
}

// DanglingRecord is a catalog record pointing to a missing payload.
type DanglingRecord struct {
	ID         string
	MissingKey string
}

// HasIssues returns true if the report contains any dangling records or orphaned objects.
func (r *ReconciliationReport) HasIssues() bool {
	return len(r.DanglingRecords) > 0 || len(r.OrphanedObjects) > 0
}

// Reconcile checks consistency between the catalog and object storage.
// With removeOrphans set, payloads no record references are deleted.
func (s *Store) Reconcile(ctx context.Context, removeOrphans bool) (*ReconciliationReport, error) {
	report := &ReconciliationReport{RunAt: s.now()}

	records, err := s.catalog.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list catalog records: %w", err)
	}
	report.TotalRecords = len(records)

	known := make(map[string]string)
	for _, rec := range records {
		for _, key := range []string{rec.LSAKey, rec.FunnelKey, rec.OverviewKey} {
			known[key] = rec.ID
		}
	}

	for _, rec := range records {
		for _, key := range []string{rec.LSAKey, rec.FunnelKey, rec.OverviewKey} {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			exists, err := s.storage.Exists(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("reconciliation: failed to check object %s: %w", key, err)
			}
			if !exists {
				report.DanglingRecords = append(report.DanglingRecords, DanglingRecord{ID: rec.ID, MissingKey: key})
			}
		}
	}

	objects, err := s.storage.ListObjects(ctx, Prefix)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list storage objects: %w", err)
	}
	report.TotalObjects = len(objects)

	for _, obj := range objects {
		if _, tracked := known[obj]; tracked {
			continue
		}
		report.OrphanedObjects = append(report.OrphanedObjects, obj)
		if removeOrphans {
			if err := s.storage.Delete(ctx, obj); err != nil {
				return nil, fmt.Errorf("reconciliation: failed to delete orphan %s: %w", obj, err)
			}
		}
	}

	return report, nil
}
