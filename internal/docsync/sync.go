// Package docsync maintains a paginated, locally cached view of remote
// document ingestion state: forward-only incremental paging, full resync,
// single-record refresh, optimistic retry and confirmed deletion.
package docsync

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"atenex-cli/internal/api"
	"atenex-cli/internal/model"
)

// IngestAPI is the slice of the gateway client the synchronizer depends on.
type IngestAPI interface {
	DocumentStatusList(ctx context.Context, tenant api.TenantAuth, limit, offset int, skipLiveChecks bool) ([]model.DocumentRecord, error)
	DocumentStatus(ctx context.Context, tenant api.TenantAuth, documentID string) (model.DocumentRecord, error)
	RetryIngest(ctx context.Context, tenant api.TenantAuth, documentID string) (model.IngestReceipt, error)
	DeleteDocument(ctx context.Context, tenant api.TenantAuth, documentID string) error
	BulkDeleteDocuments(ctx context.Context, tenant api.TenantAuth, documentIDs []string) (model.BulkDeleteResult, error)
}

const defaultPageSize = 30

// Options tune one synchronizer instance. Small interactive lists use the
// default page size with live checks; large tenant catalogs use a big page
// size with SkipLiveChecks to trade precision for latency.
type Options struct {
	PageSize       int
	SkipLiveChecks bool
}

// Synchronizer holds the locally cached collection. Collection order is
// server-assigned pagination order and is never re-sorted locally. Safe for
// concurrent use; resync and incremental fetch share a single in-flight
// guard that turns overlapping calls into no-ops.
type Synchronizer struct {
	api            IngestAPI
	tenant         api.TenantAuth
	log            *zap.Logger
	pageSize       int
	skipLiveChecks bool

	mu         sync.Mutex
	records    []model.DocumentRecord
	byID       map[string]int
	nextOffset int
	hasMore    bool
	fetching   bool
	lastErr    string
}

// New builds a Synchronizer for one tenant.
func New(ingest IngestAPI, tenant api.TenantAuth, opts Options, log *zap.Logger) *Synchronizer {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	return &Synchronizer{
		api:            ingest,
		tenant:         tenant,
		log:            log,
		pageSize:       opts.PageSize,
		skipLiveChecks: opts.SkipLiveChecks,
		byID:           map[string]int{},
		hasMore:        true,
	}
}

// begin claims the in-flight guard. It reports false when a fetch is
// already outstanding.
func (s *Synchronizer) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetching {
		return false
	}
	s.fetching = true
	return true
}

func (s *Synchronizer) end() {
	s.mu.Lock()
	s.fetching = false
	s.mu.Unlock()
}

// Resync replaces the whole local collection with the first page and resets
// the offset cursor. A resync while any fetch is outstanding is a no-op.
func (s *Synchronizer) Resync(ctx context.Context) error {
	if !s.begin() {
		return nil
	}
	defer s.end()

	page, err := s.api.DocumentStatusList(ctx, s.tenant, s.pageSize, 0, s.skipLiveChecks)
	if err != nil {
		s.recordError(ctx, err)
		return err
	}

	s.mu.Lock()
	s.records = page
	s.byID = make(map[string]int, len(page))
	for i, rec := range page {
		s.byID[rec.DocumentID] = i
	}
	s.nextOffset = len(page)
	s.hasMore = len(page) == s.pageSize
	s.lastErr = ""
	s.mu.Unlock()

	s.log.Debug("resync complete",
		zap.Int("records", len(page)),
		zap.Bool("has_more", len(page) == s.pageSize),
	)
	return nil
}

// FetchMore appends the next page at the current cursor. It never replaces
// existing records and never duplicates a document id already present. A
// page shorter than the page size is the exhaustion signal. Calls while a
// fetch is outstanding, or after exhaustion, are no-ops.
func (s *Synchronizer) FetchMore(ctx context.Context) error {
	s.mu.Lock()
	if s.fetching || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.fetching = true
	offset := s.nextOffset
	s.mu.Unlock()
	defer s.end()

	page, err := s.api.DocumentStatusList(ctx, s.tenant, s.pageSize, offset, s.skipLiveChecks)
	if err != nil {
		s.recordError(ctx, err)
		return err
	}

	s.mu.Lock()
	for _, rec := range page {
		if _, exists := s.byID[rec.DocumentID]; exists {
			continue
		}
		s.byID[rec.DocumentID] = len(s.records)
		s.records = append(s.records, rec)
	}
	// the cursor advances by what the server returned, not by what was new
	s.nextOffset = offset + len(page)
	s.hasMore = len(page) == s.pageSize
	s.lastErr = ""
	s.mu.Unlock()
	return nil
}

// Refresh re-fetches one record with live checks forced on and replaces it
// in place. A record no longer present locally is left alone.
func (s *Synchronizer) Refresh(ctx context.Context, documentID string) error {
	rec, err := s.api.DocumentStatus(ctx, s.tenant, documentID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if i, ok := s.byID[documentID]; ok {
		s.records[i] = rec
	}
	s.mu.Unlock()
	return nil
}

// Retry flips the record to processing locally before asking the gateway to
// re-run ingestion: a wrongly assumed state self-corrects on the next
// refresh, so optimism is safe here. The local flip survives a failed
// request until reconciliation.
func (s *Synchronizer) Retry(ctx context.Context, documentID string) (model.IngestReceipt, error) {
	s.mu.Lock()
	if i, ok := s.byID[documentID]; ok {
		s.records[i].Status = model.StatusProcessing
		s.records[i].ErrorMessage = ""
	}
	s.mu.Unlock()

	receipt, err := s.api.RetryIngest(ctx, s.tenant, documentID)
	if err != nil {
		s.log.Warn("retry request failed",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return model.IngestReceipt{}, err
	}
	return receipt, nil
}

// Delete removes one document. The local record goes away only after the
// gateway confirms: deletion is destructive, so no optimism.
func (s *Synchronizer) Delete(ctx context.Context, documentID string) error {
	if err := s.api.DeleteDocument(ctx, s.tenant, documentID); err != nil {
		return err
	}
	s.removeLocal(documentID)
	return nil
}

// DeleteBulk removes a set of documents in one request. Confirmed ids are
// removed locally; failures stay in place and are reported per id in the
// result. A partial failure is not an overall failure.
func (s *Synchronizer) DeleteBulk(ctx context.Context, documentIDs []string) (model.BulkDeleteResult, error) {
	res, err := s.api.BulkDeleteDocuments(ctx, s.tenant, documentIDs)
	if err != nil {
		return model.BulkDeleteResult{}, err
	}
	for _, id := range res.Deleted {
		s.removeLocal(id)
	}
	for _, f := range res.Failed {
		s.log.Warn("bulk delete rejected a document",
			zap.String("document_id", f.DocumentID),
			zap.String("reason", f.Reason),
		)
	}
	return res, nil
}

func (s *Synchronizer) removeLocal(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[documentID]
	if !ok {
		return
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	delete(s.byID, documentID)
	for j := i; j < len(s.records); j++ {
		s.byID[s.records[j].DocumentID] = j
	}
}

// recordError stores the failure for inline display, unless the owner
// already cancelled, in which case no state is written after teardown.
func (s *Synchronizer) recordError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	s.lastErr = err.Error()
	s.hasMore = false
	s.mu.Unlock()
}

// Snapshot returns a copy of the current collection in server order.
func (s *Synchronizer) Snapshot() []model.DocumentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.DocumentRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Get returns the local record for a document id.
func (s *Synchronizer) Get(documentID string) (model.DocumentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byID[documentID]; ok {
		return s.records[i], true
	}
	return model.DocumentRecord{}, false
}

// HasMore reports whether another page may exist.
func (s *Synchronizer) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// LastError returns the stored error string for inline display, empty when
// the last fetch succeeded.
func (s *Synchronizer) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Loading reports whether a resync or page fetch is outstanding.
func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetching
}
