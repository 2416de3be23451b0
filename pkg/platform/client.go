// Package platform is the HTTP client for the host application's internal
// API. It implements the collaborator interfaces the built-in action handlers
// depend on: record creation, status updates, assignment, mail delivery and
// the round-robin user directory.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jobdeck/automation/pkg/protocol"
)

// IdempotencyKeyHeader carries the execution step id so the platform can
// deduplicate retried calls.
const IdempotencyKeyHeader = "Idempotency-Key"

const tenantHeader = "X-Tenant-ID"

const defaultTimeout = 25 * time.Second

// Client talks to the host platform's internal API.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type createRecordRequest struct {
	Kind             protocol.RecordKind `json:"kind"`
	Title            string              `json:"title"`
	Description      string              `json:"description,omitempty"`
	Status           string              `json:"status,omitempty"`
	DueAt            *time.Time          `json:"due_at,omitempty"`
	CustomerID       string              `json:"customer_id,omitempty"`
	ProjectID        string              `json:"project_id,omitempty"`
	SourceDocumentID string              `json:"source_document_id,omitempty"`
}

type createRecordResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateRecord(ctx context.Context, tenantID, idempotencyKey string, record protocol.NewRecord) (string, error) {
	body := createRecordRequest{
		Kind:             record.Kind,
		Title:            record.Title,
		Description:      record.Description,
		Status:           record.Status,
		DueAt:            record.DueAt,
		CustomerID:       record.CustomerID,
		ProjectID:        record.ProjectID,
		SourceDocumentID: record.SourceDocumentID,
	}

	var resp createRecordResponse
	if err := c.do(ctx, tenantID, idempotencyKey, http.MethodPost, "/internal/records", body, &resp); err != nil {
		return "", err
	}

	return resp.ID, nil
}

func (c *Client) UpdateDocumentStatus(ctx context.Context, tenantID, idempotencyKey, documentID, status string) error {
	path := fmt.Sprintf("/internal/documents/%s/status", documentID)

	return c.do(ctx, tenantID, idempotencyKey, http.MethodPut, path, map[string]string{"status": status}, nil)
}

func (c *Client) UpdateTicketStatus(ctx context.Context, tenantID, idempotencyKey, ticketID, status string) error {
	path := fmt.Sprintf("/internal/tickets/%s/status", ticketID)

	return c.do(ctx, tenantID, idempotencyKey, http.MethodPut, path, map[string]string{"status": status}, nil)
}

func (c *Client) AssignDocument(ctx context.Context, tenantID, idempotencyKey, documentID, userID string) error {
	path := fmt.Sprintf("/internal/documents/%s/assignee", documentID)

	return c.do(ctx, tenantID, idempotencyKey, http.MethodPut, path, map[string]string{"user_id": userID}, nil)
}

func (c *Client) AssignTicket(ctx context.Context, tenantID, idempotencyKey, ticketID, userID string) error {
	path := fmt.Sprintf("/internal/tickets/%s/assignee", ticketID)

	return c.do(ctx, tenantID, idempotencyKey, http.MethodPut, path, map[string]string{"user_id": userID}, nil)
}

type sendMailRequest struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body,omitempty"`
	Helpdesk bool   `json:"helpdesk"`
}

func (c *Client) Send(ctx context.Context, tenantID, idempotencyKey string, mail protocol.OutboundMail) error {
	body := sendMailRequest{
		To:       mail.To,
		Subject:  mail.Subject,
		Body:     mail.Body,
		Helpdesk: mail.Helpdesk,
	}

	return c.do(ctx, tenantID, idempotencyKey, http.MethodPost, "/internal/mail", body, nil)
}

type nextAssigneeResponse struct {
	UserID string `json:"user_id"`
}

func (c *Client) NextAssignee(ctx context.Context, tenantID, pool string) (string, error) {
	path := fmt.Sprintf("/internal/assignees/next?pool=%s", pool)

	var resp nextAssigneeResponse
	if err := c.do(ctx, tenantID, "", http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}

	return resp.UserID, nil
}

// do performs one API call and maps the response status to a failure
// category: 4xx is permanent, 5xx and 429 are transient, as are network
// errors.
func (c *Client) do(ctx context.Context, tenantID, idempotencyKey, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return protocol.NewPermanentFailure(fmt.Errorf("failed to encode request: %w", err))
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return protocol.NewPermanentFailure(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set(tenantHeader, tenantID)

	if idempotencyKey != "" {
		req.Header.Set(IdempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return protocol.NewTransientFailure(fmt.Errorf("platform request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		callErr := fmt.Errorf("platform returned %d for %s %s: %s", resp.StatusCode, method, path, string(detail))

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return protocol.NewTransientFailure(callErr)
		}

		return protocol.NewPermanentFailure(callErr)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return protocol.NewTransientFailure(fmt.Errorf("failed to decode response: %w", err))
		}
	}

	return nil
}
