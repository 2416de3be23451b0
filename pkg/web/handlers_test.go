package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jobdeck/automation/pkg/mocks"
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/persistence/memory"
	"github.com/jobdeck/automation/pkg/registry"
	"github.com/jobdeck/automation/pkg/services"
	"github.com/jobdeck/automation/pkg/validation"
	"github.com/jobdeck/automation/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	persist := memory.NewPersistence()

	reg := registry.NewRegistry(slog.Default())
	registry.RegisterDefaults(reg, registry.Collaborators{
		Records:   mocks.NewRecordStore(),
		Mailer:    mocks.NewMailer(),
		Directory: mocks.NewDirectory("user-1"),
	})

	workflowValidator := validation.NewValidator(slog.Default(), reg)
	workflowService := services.NewWorkflow(slog.Default(), persist, workflowValidator)
	executionService := services.NewExecution(slog.Default(), persist)

	app := fiber.New()
	handlers := web.NewAPIHandlers(workflowService, executionService, validator.New())
	handlers.Register(app)

	return app, persist
}

func workflowPayload(name string) map[string]any {
	return map[string]any{
		"name":         name,
		"trigger_type": "quote_approved",
		"nodes": []map[string]any{
			{"id": "trigger-1", "kind": "trigger", "trigger_type": "quote_approved"},
			{
				"id":          "task-1",
				"kind":        "action",
				"action_type": "create_task",
				"config":      map[string]any{"title": "Schedule kickoff"},
			},
		},
		"connections": []map[string]any{
			{"id": "c-1", "source_node_id": "trigger-1", "target_node_id": "task-1"},
		},
	}
}

func jsonRequest(t *testing.T, method, path, tenantID string, payload any) *http.Request {
	t.Helper()

	var body *bytes.Buffer = bytes.NewBuffer(nil)

	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")

	if tenantID != "" {
		req.Header.Set(web.TenantHeader, tenantID)
	}

	return req
}

func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func createWorkflow(t *testing.T, app *fiber.App, tenantID string, payload map[string]any) *models.Workflow {
	t.Helper()

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/", tenantID, payload))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var workflow models.Workflow
	decodeJSON(t, resp, &workflow)

	return &workflow
}

func TestCreateAndGetWorkflow(t *testing.T) {
	app, _ := newTestApp(t)

	created := createWorkflow(t, app, "tenant-1", workflowPayload("Large quote follow-up"))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/workflows/"+created.ID, "tenant-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Workflow
	decodeJSON(t, resp, &fetched)
	assert.Equal(t, "Large quote follow-up", fetched.Name)
	require.Len(t, fetched.Nodes, 2)
}

func TestCreateWorkflowRequiresTenantHeader(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/", "", workflowPayload("No tenant")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateWorkflowRejectsShortName(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/", "tenant-1", workflowPayload("ab")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflowIsTenantIsolated(t *testing.T) {
	app, _ := newTestApp(t)

	created := createWorkflow(t, app, "tenant-1", workflowPayload("Tenant one workflow"))

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/workflows/"+created.ID, "tenant-2", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestValidateWorkflowReportsIssues(t *testing.T) {
	app, _ := newTestApp(t)

	payload := workflowPayload("Broken workflow")
	payload["connections"] = []map[string]any{}
	created := createWorkflow(t, app, "tenant-1", payload)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+created.ID+"/validate", "tenant-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result web.ValidationResponse
	decodeJSON(t, resp, &result)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Issues)
}

func TestActivateInvalidWorkflowReturnsConflict(t *testing.T) {
	app, _ := newTestApp(t)

	payload := workflowPayload("Broken workflow")
	payload["connections"] = []map[string]any{}
	created := createWorkflow(t, app, "tenant-1", payload)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+created.ID+"/activate", "tenant-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var result web.ValidationResponse
	decodeJSON(t, resp, &result)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Issues)
}

func TestUpdateActiveWorkflowReturnsConflict(t *testing.T) {
	app, _ := newTestApp(t)

	created := createWorkflow(t, app, "tenant-1", workflowPayload("Quote follow-up"))

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+created.ID+"/activate", "tenant-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	name := "Renamed while active"
	resp, err = app.Test(jsonRequest(t, http.MethodPut, "/workflows/"+created.ID, "tenant-1", map[string]any{"name": name}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDeleteWorkflow(t *testing.T) {
	app, _ := newTestApp(t)

	created := createWorkflow(t, app, "tenant-1", workflowPayload("Short lived"))

	resp, err := app.Test(jsonRequest(t, http.MethodDelete, "/workflows/"+created.ID, "tenant-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodGet, "/workflows/", "tenant-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed struct {
		TotalCount int `json:"total_count"`
	}
	decodeJSON(t, resp, &listed)
	assert.Zero(t, listed.TotalCount)
}

func seedExecution(t *testing.T, persist *memory.Persistence, id, tenantID string, status models.ExecutionStatus) {
	t.Helper()

	require.NoError(t, persist.ExecutionRepository().CreateExecution(context.Background(), &models.Execution{
		ID:         id,
		WorkflowID: "wf-1",
		TenantID:   tenantID,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}))
}

func TestListExecutionsFiltersByStatus(t *testing.T) {
	app, persist := newTestApp(t)

	seedExecution(t, persist, "exec-1", "tenant-1", models.ExecutionStatusRunning)
	seedExecution(t, persist, "exec-2", "tenant-1", models.ExecutionStatusFailed)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/executions/?status=failed", "tenant-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed struct {
		Executions []*models.Execution `json:"executions"`
		TotalCount int                 `json:"total_count"`
	}
	decodeJSON(t, resp, &listed)
	require.Equal(t, 1, listed.TotalCount)
	assert.Equal(t, "exec-2", listed.Executions[0].ID)
}

func TestListExecutionsRejectsUnknownStatus(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/executions/?status=paused", "tenant-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelExecution(t *testing.T) {
	app, persist := newTestApp(t)

	seedExecution(t, persist, "exec-1", "tenant-1", models.ExecutionStatusRunning)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/executions/exec-1/cancel", "tenant-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	cancelled, err := persist.ExecutionRepository().IsCancelRequested(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestCancelFinishedExecutionReturnsConflict(t *testing.T) {
	app, persist := newTestApp(t)

	seedExecution(t, persist, "exec-1", "tenant-1", models.ExecutionStatusCompleted)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/executions/exec-1/cancel", "tenant-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetExecutionIsTenantIsolated(t *testing.T) {
	app, persist := newTestApp(t)

	seedExecution(t, persist, "exec-1", "tenant-1", models.ExecutionStatusRunning)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/executions/exec-1", "tenant-2", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
