// Package model defines domain entities shared by the API client, the
// synchronizer and the chat controller.
package model

import "time"

// DocumentStatus is the ingestion state of a single uploaded document.
type DocumentStatus string

// Ingestion states as reported by the gateway. A record moves
// queued -> processing -> processed|error; retry moves error -> processing.
const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusError      DocumentStatus = "error"
)

// DocumentRecord is one document's ingestion state as known locally.
// StorageExists and IndexChunkCount come from live existence checks against
// downstream storage/index systems and are nil when those checks were skipped.
type DocumentRecord struct {
	DocumentID      string
	Status          DocumentStatus
	FileName        string
	FileType        string
	ChunkCount      int
	ErrorMessage    string
	CreatedAt       time.Time
	LastUpdated     time.Time
	StorageExists   *bool
	IndexChunkCount *int
	Message         string
}

// Session holds the identity derived from a decoded bearer token. The claims
// are display hints only; every request is re-authorized server-side.
type Session struct {
	UserID    string
	Email     string
	Name      string
	CompanyID string
	Roles     []string
	IsAdmin   bool
}

// ChatSummary is one conversation in the chat list, ordered by UpdatedAt
// descending for display.
type ChatSummary struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// MessageRole distinguishes user input from assistant answers.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single entry in a conversation. Messages are append-only;
// Sources are attached at creation time and never mutated afterwards.
type Message struct {
	ID            string
	Role          MessageRole
	Content       string
	Sources       []Citation
	IsError       bool
	CreatedAt     time.Time
	AuthorDisplay string
}

// Citation is the unified shape for a cited document fragment. Content and
// ContentPreview are empty for citations recovered from chat history, which
// carries only tag/score/name.
type Citation struct {
	ID             string
	DocumentID     string
	FileName       string
	Content        string
	ContentPreview string
	Metadata       map[string]any
	Score          float64
	Tag            string
}

// IngestReceipt is the gateway's acknowledgement of an upload or retry.
type IngestReceipt struct {
	DocumentID string
	TaskID     string
	Status     string
	Message    string
}

// BulkDeleteFailure reports one document the gateway refused to delete.
type BulkDeleteFailure struct {
	DocumentID string
	Reason     string
}

// BulkDeleteResult partitions a bulk delete into confirmed deletions and
// per-document failures. A partial failure is not an overall failure.
type BulkDeleteResult struct {
	Deleted []string
	Failed  []BulkDeleteFailure
}

// CompanyUserCount is one row of the admin statistics breakdown.
type CompanyUserCount struct {
	CompanyID string
	Name      string
	UserCount int
}

// AdminStats summarizes platform usage for the admin dashboard.
type AdminStats struct {
	CompanyCount    int
	UsersPerCompany []CompanyUserCount
}

// Company is a tenant as managed through the admin endpoints.
type Company struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// User is an account as managed through the admin endpoints.
type User struct {
	ID        string
	Email     string
	Name      string
	CompanyID string
	IsActive  bool
	CreatedAt time.Time
	Roles     []string
}

// UserDocumentCount is one row of the per-user document breakdown.
type UserDocumentCount struct {
	UserID string
	Name   string
	Count  int
}

// ActivityDay is one day of recent ingestion activity.
type ActivityDay struct {
	Date      string
	Uploaded  int
	Processed int
	Error     int
}

// DocumentStats aggregates a tenant's document catalog.
type DocumentStats struct {
	TotalDocuments     int
	TotalChunks        int
	ByStatus           map[string]int
	ByType             map[string]int
	ByUser             []UserDocumentCount
	RecentActivity     []ActivityDay
	OldestDocumentDate time.Time
	NewestDocumentDate time.Time
}
