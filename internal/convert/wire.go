// Package convert maps gateway wire payloads to domain entities.
package convert

import (
	"strings"
	"time"

	"atenex-cli/internal/model"
)

// --- helpers ---

// parseTime accepts the timestamp formats the gateway is known to emit and
// returns the zero time for anything else.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// --- document status (ingest service -> client) ---

// StatusPayload is a document status row as returned by the ingest service.
// Live-check fields are omitted by the fast listing variant.
type StatusPayload struct {
	ID               string  `json:"id"`
	Status           string  `json:"status"`
	FileName         *string `json:"file_name"`
	FileType         *string `json:"file_type"`
	FilePath         *string `json:"file_path,omitempty"`
	CompanyID        string  `json:"company_id,omitempty"`
	ChunkCount       *int    `json:"chunk_count"`
	ErrorMessage     *string `json:"error_message"`
	CreatedAt        string  `json:"created_at,omitempty"`
	UploadedAt       string  `json:"uploaded_at,omitempty"`
	LastUpdated      string  `json:"last_updated,omitempty"`
	MinioExists      *bool   `json:"minio_exists,omitempty"`
	MilvusChunkCount *int    `json:"milvus_chunk_count,omitempty"`
	Message          string  `json:"message,omitempty"`
}

// FromStatusPayload converts a wire status row to a DocumentRecord.
// UploadedAt substitutes for a missing CreatedAt, matching gateway behavior.
func FromStatusPayload(p StatusPayload) model.DocumentRecord {
	created := p.CreatedAt
	if created == "" {
		created = p.UploadedAt
	}
	return model.DocumentRecord{
		DocumentID:      p.ID,
		Status:          model.DocumentStatus(p.Status),
		FileName:        deref(p.FileName),
		FileType:        deref(p.FileType),
		ChunkCount:      deref(p.ChunkCount),
		ErrorMessage:    deref(p.ErrorMessage),
		CreatedAt:       parseTime(created),
		LastUpdated:     parseTime(p.LastUpdated),
		StorageExists:   p.MinioExists,
		IndexChunkCount: p.MilvusChunkCount,
		Message:         p.Message,
	}
}

// FromStatusPayloads converts a page of wire status rows.
func FromStatusPayloads(ps []StatusPayload) []model.DocumentRecord {
	out := make([]model.DocumentRecord, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromStatusPayload(p))
	}
	return out
}

// --- citations (query service -> client) ---

// LiveSource is the citation shape attached to a live query answer: explicit
// document id and full fragment content.
type LiveSource struct {
	ID             string         `json:"id"`
	DocumentID     *string        `json:"document_id"`
	FileName       *string        `json:"file_name"`
	Content        string         `json:"content"`
	ContentPreview string         `json:"content_preview"`
	Metadata       map[string]any `json:"metadata"`
	Score          float64        `json:"score"`
	CitaTag        string         `json:"cita_tag,omitempty"`
}

// HistorySource is the citation shape stored with chat history. Field names
// follow the gateway's wire contract; only tag, score and file name survive,
// and the document id is packed into a composite "<doc>_<fragment>" ref.
type HistorySource struct {
	Score       float64 `json:"score"`
	Page        string  `json:"pagina,omitempty"`
	CitaTag     string  `json:"cita_tag"`
	DocumentRef string  `json:"id_documento"`
	FileName    string  `json:"nombre_archivo"`
}

// FromLiveSource converts a live query citation to the unified shape.
func FromLiveSource(s LiveSource) model.Citation {
	return model.Citation{
		ID:             s.ID,
		DocumentID:     deref(s.DocumentID),
		FileName:       deref(s.FileName),
		Content:        s.Content,
		ContentPreview: s.ContentPreview,
		Metadata:       s.Metadata,
		Score:          s.Score,
		Tag:            s.CitaTag,
	}
}

// FromLiveSources converts a list of live query citations.
func FromLiveSources(ss []LiveSource) []model.Citation {
	if len(ss) == 0 {
		return nil
	}
	out := make([]model.Citation, 0, len(ss))
	for _, s := range ss {
		out = append(out, FromLiveSource(s))
	}
	return out
}

// FromHistorySource converts a history citation to the unified shape. The
// document id is recovered by stripping the trailing fragment suffix from the
// composite ref; content and preview are unavailable in this direction.
func FromHistorySource(s HistorySource) model.Citation {
	docID := s.DocumentRef
	if parts := strings.Split(s.DocumentRef, "_"); len(parts) > 1 {
		docID = strings.Join(parts[:len(parts)-1], "_")
	}
	fileName := s.FileName
	if fileName == "None" {
		fileName = ""
	}
	return model.Citation{
		ID:         s.DocumentRef,
		DocumentID: docID,
		FileName:   fileName,
		Score:      s.Score,
		Tag:        s.CitaTag,
	}
}

// FromHistorySources converts a list of history citations.
func FromHistorySources(ss []HistorySource) []model.Citation {
	if len(ss) == 0 {
		return nil
	}
	out := make([]model.Citation, 0, len(ss))
	for _, s := range ss {
		out = append(out, FromHistorySource(s))
	}
	return out
}

// --- chat history (query service -> client) ---

// MessagePayload is one stored chat message as returned by the history
// endpoint.
type MessagePayload struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chat_id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Sources   []HistorySource `json:"sources"`
	CreatedAt string          `json:"created_at"`
}

// FromMessagePayload converts a stored chat message, normalizing its sources.
func FromMessagePayload(p MessagePayload) model.Message {
	return model.Message{
		ID:        p.ID,
		Role:      model.MessageRole(p.Role),
		Content:   p.Content,
		Sources:   FromHistorySources(p.Sources),
		CreatedAt: parseTime(p.CreatedAt),
	}
}

// FromMessagePayloads converts a page of stored chat messages.
func FromMessagePayloads(ps []MessagePayload) []model.Message {
	out := make([]model.Message, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromMessagePayload(p))
	}
	return out
}

// --- chat list (query service -> client) ---

// ChatSummaryPayload is one conversation in the chat list response.
type ChatSummaryPayload struct {
	ID           string  `json:"id"`
	Title        *string `json:"title"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	MessageCount int     `json:"message_count"`
}

// FromChatSummaryPayload converts a chat list row.
func FromChatSummaryPayload(p ChatSummaryPayload) model.ChatSummary {
	return model.ChatSummary{
		ID:           p.ID,
		Title:        deref(p.Title),
		CreatedAt:    parseTime(p.CreatedAt),
		UpdatedAt:    parseTime(p.UpdatedAt),
		MessageCount: p.MessageCount,
	}
}

// FromChatSummaryPayloads converts the chat list response.
func FromChatSummaryPayloads(ps []ChatSummaryPayload) []model.ChatSummary {
	out := make([]model.ChatSummary, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromChatSummaryPayload(p))
	}
	return out
}
