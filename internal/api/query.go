package api

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"atenex-cli/internal/convert"
	"atenex-cli/internal/model"
)

type askRequest struct {
	Query         string  `json:"query"`
	RetrieverTopK *int    `json:"retriever_top_k,omitempty"`
	ChatID        *string `json:"chat_id"`
}

type askResponse struct {
	Answer             string               `json:"answer"`
	RetrievedDocuments []convert.LiveSource `json:"retrieved_documents"`
	QueryLogID         *string              `json:"query_log_id"`
	ChatID             string               `json:"chat_id"`
}

// AskResult is a query answer with its citations already normalized.
type AskResult struct {
	Answer  string
	ChatID  string
	LogID   string
	Sources []model.Citation
}

// Ask sends one query to the assistant. An empty chatID starts a new
// conversation; the gateway assigns and returns its id.
func (c *Client) Ask(ctx context.Context, query, chatID string, topK int) (AskResult, error) {
	req := askRequest{Query: query}
	if chatID != "" {
		req.ChatID = &chatID
	}
	if topK > 0 {
		req.RetrieverTopK = &topK
	}

	var resp askResponse
	err := c.do(ctx, requestSpec{
		method:   "POST",
		endpoint: "/api/v1/query/ask",
		body:     req,
	}, &resp)
	if err != nil {
		return AskResult{}, err
	}

	out := AskResult{
		Answer:  resp.Answer,
		ChatID:  resp.ChatID,
		Sources: convert.FromLiveSources(resp.RetrievedDocuments),
	}
	if resp.QueryLogID != nil {
		out.LogID = *resp.QueryLogID
	}
	return out, nil
}

// Chats lists the caller's conversations, most recently updated first.
func (c *Client) Chats(ctx context.Context, limit, offset int) ([]model.ChatSummary, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var resp []convert.ChatSummaryPayload
	err := c.do(ctx, requestSpec{
		method:   "GET",
		endpoint: "/api/v1/query/chats",
		query:    q,
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := convert.FromChatSummaryPayloads(resp)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// ChatMessages fetches a conversation's stored messages with their history
// citations normalized.
func (c *Client) ChatMessages(ctx context.Context, chatID string, limit, offset int) ([]model.Message, error) {
	if chatID == "" {
		return nil, &Error{Status: http.StatusBadRequest, Message: "a chat id is required"}
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var resp []convert.MessagePayload
	err := c.do(ctx, requestSpec{
		method:   "GET",
		endpoint: "/api/v1/query/chats/" + chatID + "/messages",
		query:    q,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return convert.FromMessagePayloads(resp), nil
}

// DeleteChat removes one conversation and its history.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return &Error{Status: http.StatusBadRequest, Message: "a chat id is required"}
	}
	return c.do(ctx, requestSpec{
		method:   "DELETE",
		endpoint: "/api/v1/query/chats/" + chatID,
	}, nil)
}
