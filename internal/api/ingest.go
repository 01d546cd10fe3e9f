package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"atenex-cli/internal/convert"
	"atenex-cli/internal/model"
)

type ingestReceiptPayload struct {
	DocumentID string `json:"document_id"`
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (p ingestReceiptPayload) toModel() model.IngestReceipt {
	return model.IngestReceipt{
		DocumentID: p.DocumentID,
		TaskID:     p.TaskID,
		Status:     p.Status,
		Message:    p.Message,
	}
}

// UploadDocument submits one file for ingestion as multipart form data.
// A 409 from the gateway means the document already exists; callers can
// detect it with errors.Is(err, errs.ErrDuplicate).
func (c *Client) UploadDocument(ctx context.Context, tenant TenantAuth, fileName string, r io.Reader) (model.IngestReceipt, error) {
	if fileName == "" {
		return model.IngestReceipt{}, &Error{Status: http.StatusBadRequest, Message: "a file name is required"}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return model.IngestReceipt{}, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return model.IngestReceipt{}, fmt.Errorf("read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return model.IngestReceipt{}, fmt.Errorf("finish multipart body: %w", err)
	}

	var resp ingestReceiptPayload
	err = c.do(ctx, requestSpec{
		method:   "POST",
		endpoint: "/api/v1/ingest/upload",
		raw:      &buf,
		rawType:  mw.FormDataContentType(),
		tenant:   &tenant,
	}, &resp)
	if err != nil {
		return model.IngestReceipt{}, err
	}
	return resp.toModel(), nil
}

// DocumentStatusList fetches one page of the tenant's document catalog.
// skipLiveChecks trades precision for latency: the gateway omits the
// storage/index existence fields, which is appropriate for large listings.
func (c *Client) DocumentStatusList(ctx context.Context, tenant TenantAuth, limit, offset int, skipLiveChecks bool) ([]model.DocumentRecord, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if skipLiveChecks {
		q.Set("skip_live_check", "true")
	}

	var resp []convert.StatusPayload
	err := c.do(ctx, requestSpec{
		method:   "GET",
		endpoint: "/api/v1/ingest/status",
		query:    q,
		tenant:   &tenant,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return convert.FromStatusPayloads(resp), nil
}

// DocumentStatus fetches one document with live checks forced on. The
// live-check fields are always populated in the result: absent values
// default to "object missing" / -1 chunks, matching gateway behavior.
func (c *Client) DocumentStatus(ctx context.Context, tenant TenantAuth, documentID string) (model.DocumentRecord, error) {
	if documentID == "" {
		return model.DocumentRecord{}, &Error{Status: http.StatusBadRequest, Message: "a document id is required"}
	}

	var resp convert.StatusPayload
	err := c.do(ctx, requestSpec{
		method:   "GET",
		endpoint: "/api/v1/ingest/status/" + documentID,
		tenant:   &tenant,
	}, &resp)
	if err != nil {
		return model.DocumentRecord{}, err
	}

	rec := convert.FromStatusPayload(resp)
	if rec.StorageExists == nil {
		exists := false
		rec.StorageExists = &exists
	}
	if rec.IndexChunkCount == nil {
		count := -1
		rec.IndexChunkCount = &count
	}
	return rec, nil
}

// RetryIngest asks the gateway to re-run ingestion for a failed document.
func (c *Client) RetryIngest(ctx context.Context, tenant TenantAuth, documentID string) (model.IngestReceipt, error) {
	if documentID == "" {
		return model.IngestReceipt{}, &Error{Status: http.StatusBadRequest, Message: "a document id is required"}
	}

	var resp ingestReceiptPayload
	err := c.do(ctx, requestSpec{
		method:   "POST",
		endpoint: "/api/v1/ingest/retry/" + documentID,
		tenant:   &tenant,
	}, &resp)
	if err != nil {
		return model.IngestReceipt{}, err
	}
	return resp.toModel(), nil
}

// DeleteDocument removes one document and its derived data.
func (c *Client) DeleteDocument(ctx context.Context, tenant TenantAuth, documentID string) error {
	if documentID == "" {
		return &Error{Status: http.StatusBadRequest, Message: "a document id is required"}
	}
	return c.do(ctx, requestSpec{
		method:   "DELETE",
		endpoint: "/api/v1/ingest/" + documentID,
		tenant:   &tenant,
	}, nil)
}

type bulkDeleteRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

type bulkDeleteResponse struct {
	Deleted []string `json:"deleted"`
	Failed  []struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	} `json:"failed"`
}

// BulkDeleteDocuments removes a set of documents in one request. The result
// partitions confirmed deletions from per-document failures; a partial
// failure is reported in the result, not as an error.
func (c *Client) BulkDeleteDocuments(ctx context.Context, tenant TenantAuth, documentIDs []string) (model.BulkDeleteResult, error) {
	if len(documentIDs) == 0 {
		return model.BulkDeleteResult{}, &Error{Status: http.StatusBadRequest, Message: "at least one document id is required"}
	}

	var resp bulkDeleteResponse
	err := c.do(ctx, requestSpec{
		method:   "DELETE",
		endpoint: "/api/v1/ingest/bulk",
		body:     bulkDeleteRequest{DocumentIDs: documentIDs},
		tenant:   &tenant,
	}, &resp)
	if err != nil {
		return model.BulkDeleteResult{}, err
	}

	out := model.BulkDeleteResult{Deleted: resp.Deleted}
	for _, f := range resp.Failed {
		out.Failed = append(out.Failed, model.BulkDeleteFailure{DocumentID: f.ID, Reason: f.Error})
	}
	return out, nil
}

// StatsFilter narrows the document stats aggregation. Zero values are
// omitted from the query.
type StatsFilter struct {
	FromDate string
	ToDate   string
	Status   string
	GroupBy  string
}

type documentStatsPayload struct {
	TotalDocuments int            `json:"total_documents"`
	TotalChunks    int            `json:"total_chunks"`
	ByStatus       map[string]int `json:"by_status"`
	ByType         map[string]int `json:"by_type"`
	ByUser         []struct {
		UserID string `json:"user_id"`
		Name   string `json:"name"`
		Count  int    `json:"count"`
	} `json:"by_user"`
	RecentActivity []struct {
		Date      string `json:"date"`
		Uploaded  int    `json:"uploaded"`
		Processed int    `json:"processed"`
		Error     int    `json:"error"`
	} `json:"recent_activity"`
	OldestDocumentDate *string `json:"oldest_document_date"`
	NewestDocumentDate *string `json:"newest_document_date"`
}

// DocumentStats aggregates the tenant's catalog with optional filters.
func (c *Client) DocumentStats(ctx context.Context, tenant TenantAuth, filter StatsFilter) (model.DocumentStats, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"from_date": filter.FromDate,
		"to_date":   filter.ToDate,
		"status":    filter.Status,
		"group_by":  filter.GroupBy,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}

	var resp documentStatsPayload
	err := c.do(ctx, requestSpec{
		method:   "GET",
		endpoint: "/api/v1/documents/stats",
		query:    q,
		tenant:   &tenant,
	}, &resp)
	if err != nil {
		return model.DocumentStats{}, err
	}

	out := model.DocumentStats{
		TotalDocuments: resp.TotalDocuments,
		TotalChunks:    resp.TotalChunks,
		ByStatus:       resp.ByStatus,
		ByType:         resp.ByType,
	}
	for _, bu := range resp.ByUser {
		out.ByUser = append(out.ByUser, model.UserDocumentCount{UserID: bu.UserID, Name: bu.Name, Count: bu.Count})
	}
	for _, a := range resp.RecentActivity {
		out.RecentActivity = append(out.RecentActivity, model.ActivityDay{
			Date: a.Date, Uploaded: a.Uploaded, Processed: a.Processed, Error: a.Error,
		})
	}
	if resp.OldestDocumentDate != nil {
		out.OldestDocumentDate = parseStatsTime(*resp.OldestDocumentDate)
	}
	if resp.NewestDocumentDate != nil {
		out.NewestDocumentDate = parseStatsTime(*resp.NewestDocumentDate)
	}
	return out, nil
}

func parseStatsTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
