// Package results persists analyses: payloads go to object storage as
// snappy-compressed JSON and the catalog keeps one record per analysis.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang/snappy"

	"github.com/devlens/devlens/internal/catalog"
	dlerrors "github.com/devlens/devlens/internal/errors"
	"github.com/devlens/devlens/internal/storage"
	"github.com/devlens/devlens/pkg/types"
)

// Prefix is the object storage prefix under which all payloads live.
const Prefix = "analyses/"

// Payload names within an analysis prefix.
const (
	PayloadLSA      = "lsa"
	PayloadFunnel   = "funnel"
	PayloadOverview = "overview"
)

// ObjectKey returns the storage key for one payload of an analysis.
func ObjectKey(id, payload string) string {
	return Prefix + id + "/" + payload + ".json.sz"
}

// Store combines the catalog and object storage.
type Store struct {
	catalog catalog.Catalog
	storage storage.ObjectStorage
	now     func() time.Time
}

// NewStore creates a result store.
func NewStore(cat catalog.Catalog, store storage.ObjectStorage) *Store {
	return &Store{
		catalog: cat,
		storage: store,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores an analysis and returns its catalog record.
func (s *Store) Create(ctx context.Context, sourceFile string, analysis *types.Analysis) (*types.AnalysisRecord, error) {
	sourceFile = strings.TrimSpace(sourceFile)
	if sourceFile == "" {
		return nil, dlerrors.NewValidationError(dlerrors.CodeEmptyName, "source file name is required")
	}
	if analysis == nil {
		return nil, dlerrors.NewValidationError(dlerrors.CodeInvalidRequest, "analysis is required")
	}

	id, err := types.NewAnalysisID()
	if err != nil {
		return nil, dlerrors.NewInternalError("failed to generate analysis id", err)
	}

	now := s.now()
	rec := &types.AnalysisRecord{
		ID:              id,
		SourceFile:      sourceFile,
		RecordCount:     analysis.RecordCount,
		ClassifiedCount: analysis.ClassifiedCount,
		GeneratedAt:     analysis.GeneratedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
		LSAKey:          ObjectKey(id, PayloadLSA),
		FunnelKey:       ObjectKey(id, PayloadFunnel),
		OverviewKey:     ObjectKey(id, PayloadOverview),
	}
	if rec.GeneratedAt.IsZero() {
		rec.GeneratedAt = now
	}

	payloads := []struct {
		key   string
		value interface{}
	}{
		{rec.LSAKey, analysis.LSA},
		{rec.FunnelKey, analysis.Funnel},
		{rec.OverviewKey, analysis.Overview},
	}

	var written []string
	for _, p := range payloads {
		n, err := s.put(ctx, p.key, p.value)
		if err != nil {
			s.removeObjects(written)
			return nil, err
		}
		written = append(written, p.key)
		rec.SizeBytes += int64(n)
	}

	if err := s.catalog.Insert(ctx, rec); err != nil {
		s.removeObjects(written)
		return nil, dlerrors.NewCatalogError(dlerrors.CodeWriteFailed, "failed to record analysis", err)
	}

	return rec, nil
}

// Get returns the record and decoded analysis for id.
func (s *Store) Get(ctx context.Context, id string) (*types.AnalysisRecord, *types.Analysis, error) {
	rec, err := s.record(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	analysis := &types.Analysis{
		RecordCount:     rec.RecordCount,
		ClassifiedCount: rec.ClassifiedCount,
		GeneratedAt:     rec.GeneratedAt,
	}
	if err := s.get(ctx, rec.LSAKey, &analysis.LSA); err != nil {
		return nil, nil, err
	}
	if err := s.get(ctx, rec.FunnelKey, &analysis.Funnel); err != nil {
		return nil, nil, err
	}
	if err := s.get(ctx, rec.OverviewKey, &analysis.Overview); err != nil {
		return nil, nil, err
	}
	if analysis.Overview != nil {
		// every input row is an overview event
		analysis.RowCount = analysis.Overview.TotalEvents
	}

	return rec, analysis, nil
}

// Record returns only the catalog record for id.
func (s *Store) Record(ctx context.Context, id string) (*types.AnalysisRecord, error) {
	return s.record(ctx, id)
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*types.AnalysisRecord, error) {
	records, err := s.catalog.List(ctx, limit, offset)
	if err != nil {
		return nil, dlerrors.NewInternalError("failed to list analyses", err)
	}
	if records == nil {
		records = []*types.AnalysisRecord{}
	}
	return records, nil
}

// Rename changes the source file name of a stored analysis.
func (s *Store) Rename(ctx context.Context, id, sourceFile string) (*types.AnalysisRecord, error) {
	sourceFile = strings.TrimSpace(sourceFile)
	if sourceFile == "" {
		return nil, dlerrors.NewValidationError(dlerrors.CodeEmptyName, "source file name cannot be empty")
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	if err := s.catalog.Rename(ctx, id, sourceFile, s.now()); err != nil {
		return nil, mapCatalogError(id, err)
	}
	return s.record(ctx, id)
}

// Delete removes an analysis. The catalog row goes first; payloads that
// cannot be removed are left for Reconcile.
func (s *Store) Delete(ctx context.Context, id string) error {
	rec, err := s.record(ctx, id)
	if err != nil {
		return err
	}

	if err := s.catalog.Delete(ctx, id); err != nil {
		return mapCatalogError(id, err)
	}

	for _, key := range []string{rec.LSAKey, rec.FunnelKey, rec.OverviewKey} {
		if err := s.storage.Delete(ctx, key); err != nil {
			log.Printf("results: failed to delete payload %s: %v", key, err)
		}
	}
	return nil
}

func (s *Store) record(ctx context.Context, id string) (*types.AnalysisRecord, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	rec, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, mapCatalogError(id, err)
	}
	return rec, nil
}

func (s *Store) put(ctx context.Context, key string, value interface{}) (int, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return 0, dlerrors.NewInternalError("failed to encode payload", err)
	}
	compressed := snappy.Encode(nil, raw)

	if _, err := s.storage.Put(ctx, key, compressed); err != nil {
		return 0, dlerrors.NewStorageError(dlerrors.CodeUploadFailed,
			fmt.Sprintf("failed to write %s", key), err)
	}
	return len(compressed), nil
}

func (s *Store) get(ctx context.Context, key string, dest interface{}) error {
	compressed, err := s.storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return dlerrors.NewStorageError(dlerrors.CodeObjectNotFound,
				fmt.Sprintf("payload %s is missing", key), err)
		}
		return dlerrors.NewStorageError(dlerrors.CodeDownloadFailed,
			fmt.Sprintf("failed to read %s", key), err)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return dlerrors.NewCatalogError(dlerrors.CodeCorruptRecord,
			fmt.Sprintf("payload %s is not valid snappy data", key), err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return dlerrors.NewCatalogError(dlerrors.CodeCorruptRecord,
			fmt.Sprintf("payload %s is not valid JSON", key), err)
	}
	return nil
}

// removeObjects deletes payloads written by a failed Create. It uses a fresh
// context so cleanup still runs when the request context was cancelled.
func (s *Store) removeObjects(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			log.Printf("results: failed to clean up payload %s: %v", key, err)
		}
	}
}

func validateID(id string) error {
	if !types.ValidAnalysisID(id) {
		return dlerrors.NewValidationError(dlerrors.CodeInvalidID,
			fmt.Sprintf("invalid analysis id %q", id))
	}
	return nil
}

func mapCatalogError(id string, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return dlerrors.Wrap(dlerrors.ErrCategoryCatalog, dlerrors.CodeAnalysisNotFound,
			fmt.Sprintf("analysis %s not found", id), err)
	}
	return dlerrors.NewCatalogError(dlerrors.CodeWriteFailed, "catalog operation failed", err)
}
