package docsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"atenex-cli/internal/api"
	"atenex-cli/internal/model"
)

// fakeIngest serves canned pages keyed by offset and records every call.
type fakeIngest struct {
	mu        sync.Mutex
	pages     map[int][]model.DocumentRecord
	listErr   error
	listCalls []int
	single    map[string]model.DocumentRecord
	retryErr  error
	deleteErr error
	bulkRes   model.BulkDeleteResult
	bulkErr   error
	block     chan struct{} // when set, DocumentStatusList parks until closed
}

func (f *fakeIngest) DocumentStatusList(_ context.Context, _ api.TenantAuth, limit, offset int, _ bool) ([]model.DocumentRecord, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, offset)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := f.pages[offset]
	if len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}

func (f *fakeIngest) DocumentStatus(_ context.Context, _ api.TenantAuth, id string) (model.DocumentRecord, error) {
	rec, ok := f.single[id]
	if !ok {
		return model.DocumentRecord{}, errors.New("not found")
	}
	return rec, nil
}

func (f *fakeIngest) RetryIngest(_ context.Context, _ api.TenantAuth, id string) (model.IngestReceipt, error) {
	if f.retryErr != nil {
		return model.IngestReceipt{}, f.retryErr
	}
	return model.IngestReceipt{DocumentID: id, TaskID: "task-1", Status: "processing"}, nil
}

func (f *fakeIngest) DeleteDocument(_ context.Context, _ api.TenantAuth, _ string) error {
	return f.deleteErr
}

func (f *fakeIngest) BulkDeleteDocuments(_ context.Context, _ api.TenantAuth, _ []string) (model.BulkDeleteResult, error) {
	return f.bulkRes, f.bulkErr
}

func (f *fakeIngest) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.listCalls))
	copy(out, f.listCalls)
	return out
}

func records(prefix string, n int) []model.DocumentRecord {
	out := make([]model.DocumentRecord, n)
	for i := range out {
		out[i] = model.DocumentRecord{
			DocumentID: fmt.Sprintf("%s-%d", prefix, i),
			Status:     model.StatusProcessed,
			FileName:   fmt.Sprintf("%s-%d.pdf", prefix, i),
		}
	}
	return out
}

func newTestSync(t *testing.T, f *fakeIngest, opts Options) *Synchronizer {
	t.Helper()
	tenant := api.TenantAuth{UserID: "u1", CompanyID: "c1"}
	return New(f, tenant, opts, zaptest.NewLogger(t))
}

func TestResync_ReplacesAndSetsCursor(t *testing.T) {
	t.Parallel()

	f := &fakeIngest{pages: map[int][]model.DocumentRecord{0: records("a", 3)}}
	s := newTestSync(t, f, Options{PageSize: 3})
	s.records = records("stale", 5) // leftover from a previous run

	if err := s.Resync(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got := s.Snapshot()
	if len(got) != 3 || got[0].DocumentID != "a-0" {
		t.Fatalf("collection not replaced: %+v", got)
	}
	if !s.HasMore() {
		t.Fatalf("full page must leave hasMore set")
	}
}

func TestFetchMore_AppendsWithoutDuplicates(t *testing.T) {
	t.Parallel()

	page1 := records("d", 3)
	// server shifted: second page re-serves d-2 before the genuinely new ones
	page2 := []model.DocumentRecord{page1[2], {DocumentID: "d-3"}, {DocumentID: "d-4"}}
	f := &fakeIngest{pages: map[int][]model.DocumentRecord{0: page1, 3: page2}}
	s := newTestSync(t, f, Options{PageSize: 3})

	if err := s.Resync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if err := s.FetchMore(context.Background()); err != nil {
		t.Fatalf("fetch more: %v", err)
	}

	got := s.Snapshot()
	if len(got) != 5 {
		t.Fatalf("want 5 unique records, got %d", len(got))
	}
	seen := map[string]bool{}
	for _, rec := range got {
		if seen[rec.DocumentID] {
			t.Fatalf("duplicate document id %q", rec.DocumentID)
		}
		seen[rec.DocumentID] = true
	}
	// cursor advanced by returned count, not unique count
	if s.nextOffset != 6 {
		t.Fatalf("cursor want 6, got %d", s.nextOffset)
	}
}

func TestFetchMore_ShortPageExhausts(t *testing.T) {
	t.Parallel()

	f := &fakeIngest{pages: map[int][]model.DocumentRecord{
		0: records("d", 3),
		3: records("e", 1),
	}}
	s := newTestSync(t, f, Options{PageSize: 3})

	if err := s.Resync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if err := s.FetchMore(context.Background()); err != nil {
		t.Fatalf("fetch more: %v", err)
	}
	if s.HasMore() {
		t.Fatalf("short page must clear hasMore")
	}

	// further calls are no-ops, no network traffic
	before := len(f.calls())
	if err := s.FetchMore(context.Background()); err != nil {
		t.Fatalf("exhausted fetch: %v", err)
	}
	if len(f.calls()) != before {
		t.Fatalf("exhausted fetch must not hit the server")
	}
}

func TestResync_WhileFetchingIsNoOp(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	f := &fakeIngest{
		pages: map[int][]model.DocumentRecord{0: records("a", 2)},
		block: block,
	}
	s := newTestSync(t, f, Options{PageSize: 3})

	done := make(chan error, 1)
	go func() { done <- s.Resync(context.Background()) }()

	// wait for the first fetch to park inside the fake
	for len(f.calls()) == 0 {
		time.Sleep(time.Millisecond)
	}

	if err := s.Resync(context.Background()); err != nil {
		t.Fatalf("overlapping resync must be a silent no-op, got %v", err)
	}
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first resync: %v", err)
	}
	if calls := f.calls(); len(calls) != 1 {
		t.Fatalf("want exactly one list call, got %d", len(calls))
	}
}

func TestResync_ErrorKeptForDisplay(t *testing.T) {
	t.Parallel()

	f := &fakeIngest{listErr: errors.New("gateway timeout")}
	s := newTestSync(t, f, Options{})

	if err := s.Resync(context.Background()); err == nil {
		t.Fatalf("want error")
	}
	if s.LastError() != "gateway timeout" {
		t.Fatalf("error not kept: %q", s.LastError())
	}
	if s.HasMore() {
		t.Fatalf("failed fetch must stop further paging")
	}
}

func TestResync_CancelledContextWritesNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeIngest{listErr: ctx.Err()}
	s := newTestSync(t, f, Options{})

	if err := s.Resync(ctx); err == nil {
		t.Fatalf("want error")
	}
	if s.LastError() != "" {
		t.Fatalf("no error may be recorded after cancellation, got %q", s.LastError())
	}
}

func TestRetry_OptimisticFlip(t *testing.T) {
	t.Parallel()

	f := &fakeIngest{pages: map[int][]model.DocumentRecord{0: {
		{DocumentID: "d-1", Status: model.StatusError, ErrorMessage: "ocr crashed"},
	}}}
	s := newTestSync(t, f, Options{})
	if err := s.Resync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}

	receipt, err := s.Retry(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if receipt.TaskID != "task-1" {
		t.Fatalf("receipt not returned: %+v", receipt)
	}
	rec, _ := s.Get("d-1")
	if rec.Status != model.StatusProcessing || rec.ErrorMessage != "" {
		t.Fatalf("record must flip to processing before confirmation: %+v", rec)
	}
}

func TestRetry_FailureKeepsOptimisticStateUntilRefresh(t *testing.T) {
	t.Parallel()

	f := &fakeIngest{
		pages:    map[int][]model.DocumentRecord{0: {{DocumentID: "d-1", Status: model.StatusError}}},
		retryErr: errors.New("gateway down"),
		single:   map[string]model.DocumentRecord{"d-1": {DocumentID: "d-1", Status: model.StatusError, ErrorMessage: "ocr crashed"}},
	}
	s := newTestSync(t, f, Options{})
	if err := s.Resync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}

	if _, err := s.Retry(context.Background(), "d-1"); err == nil {
		t.Fatalf("want error")
	}
	rec, _ := s.Get("d-1")
	if rec.Status != model.StatusProcessing {
		t.Fatalf("optimistic flip must persist until reconciliation, got %+v", rec)
	}

	// a refresh reconciles back to the server's truth
	if err := s.Refresh(context.Background(), "d-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	rec, _ = s.Get("d-1")
	if rec.Status != model.StatusError || rec.ErrorMessage != "ocr crashed" {
		t.Fatalf("refresh must restore server state, got %+v", rec)
	}
}

func TestDelete_NotOptimistic(t *testing.T) {
	t.Parallel()

	f := &fakeIngest{
		pages:     map[int][]model.DocumentRecord{0: records("d", 2)},
		deleteErr: errors.New("permission denied"),
	}
	s := newTestSync(t, f, Options{})
	if err := s.Resync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}

	if err := s.Delete(context.Background(), "d-0"); err == nil {
		t.Fatalf("want error")
	}
	if _, ok := s.Get("d-0"); !ok {
		t.Fatalf("record must survive a failed delete")
	}

	f.deleteErr = nil
	if err := s.Delete(context.Background(), "d-0"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.Get("d-0"); ok {
		t.Fatalf("record must go away after confirmation")
	}
	if _, ok := s.Get("d-1"); !ok {
		t.Fatalf("other records must stay")
	}
}

func TestDeleteBulk_PartialFailure(t *testing.T) {
	t.Parallel()

	f := &fakeIngest{
		pages: map[int][]model.DocumentRecord{0: records("d", 5)},
		bulkRes: model.BulkDeleteResult{
			Deleted: []string{"d-0", "d-1", "d-2"},
			Failed: []model.BulkDeleteFailure{
				{DocumentID: "d-3", Reason: "locked"},
				{DocumentID: "d-4", Reason: "not found"},
			},
		},
	}
	s := newTestSync(t, f, Options{})
	if err := s.Resync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}

	res, err := s.DeleteBulk(context.Background(), []string{"d-0", "d-1", "d-2", "d-3", "d-4"})
	if err != nil {
		t.Fatalf("partial failure must not be an overall error: %v", err)
	}
	if len(res.Deleted) != 3 || len(res.Failed) != 2 {
		t.Fatalf("partition mismatch: %+v", res)
	}
	got := s.Snapshot()
	if len(got) != 2 {
		t.Fatalf("only confirmed ids may be removed, got %+v", got)
	}
	for _, rec := range got {
		if rec.DocumentID != "d-3" && rec.DocumentID != "d-4" {
			t.Fatalf("failed id removed: %q", rec.DocumentID)
		}
	}
}

func TestRefresh_AbsentRecordIgnored(t *testing.T) {
	t.Parallel()

	f := &fakeIngest{
		pages:  map[int][]model.DocumentRecord{0: records("d", 1)},
		single: map[string]model.DocumentRecord{"gone": {DocumentID: "gone", Status: model.StatusProcessed}},
	}
	s := newTestSync(t, f, Options{})
	if err := s.Resync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}

	if err := s.Refresh(context.Background(), "gone"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := s.Snapshot(); len(got) != 1 || got[0].DocumentID != "d-0" {
		t.Fatalf("refresh of an absent record must not append: %+v", got)
	}
}
