package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appengine "github.com/workflowkit/engine/internal/application/engine"
	"github.com/workflowkit/engine/internal/domain/repository"
	"github.com/workflowkit/engine/internal/infrastructure/logger"
)

// ExecutionHandlers provides HTTP handlers for triggering and inspecting executions
type ExecutionHandlers struct {
	executionRepo    repository.ExecutionRepository
	workflowRepo     repository.WorkflowRepository
	executionManager *appengine.ExecutionManager
	logger           *logger.Logger
}

func NewExecutionHandlers(
	executionRepo repository.ExecutionRepository,
	workflowRepo repository.WorkflowRepository,
	executionManager *appengine.ExecutionManager,
	log *logger.Logger,
) *ExecutionHandlers {
	return &ExecutionHandlers{
		executionRepo:    executionRepo,
		workflowRepo:     workflowRepo,
		executionManager: executionManager,
		logger:           log,
	}
}

// HandleTriggerExecution handles POST /api/v1/workflows/:workflow_id/executions
func (h *ExecutionHandlers) HandleTriggerExecution(c *gin.Context) {
	workflowID, ok := getParam(c, "workflow_id")
	if !ok {
		return
	}

	var req struct {
		Input      map[string]interface{} `json:"input,omitempty"`
		Variables  map[string]interface{} `json:"variables,omitempty"`
		StrictMode bool                    `json:"strict_mode,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		respondAPIError(c, ErrInvalidJSON)
		return
	}

	opts := appengine.DefaultExecutionOptions()
	opts.StrictMode = req.StrictMode
	if req.Variables != nil {
		opts.Variables = req.Variables
	}

	execution, err := h.executionManager.Execute(c.Request.Context(), workflowID, req.Input, opts)
	if err != nil {
		h.logger.Error("failed to execute workflow", "error", err, "workflow_id", workflowID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusAccepted, execution)
}

// HandleGetExecution handles GET /api/v1/executions/:execution_id
func (h *ExecutionHandlers) HandleGetExecution(c *gin.Context) {
	executionID, ok := getParam(c, "execution_id")
	if !ok {
		return
	}

	executionUUID, err := uuid.Parse(executionID)
	if err != nil {
		respondAPIErrorWithRequestID(c, ErrInvalidID)
		return
	}

	executionModel, err := h.executionRepo.FindByIDWithRelations(c.Request.Context(), executionUUID)
	if err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, appengine.ExecutionModelToDomain(executionModel))
}

// HandleListExecutions handles GET /api/v1/workflows/:workflow_id/executions
func (h *ExecutionHandlers) HandleListExecutions(c *gin.Context) {
	workflowID, ok := getParam(c, "workflow_id")
	if !ok {
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondAPIErrorWithRequestID(c, ErrInvalidID)
		return
	}

	limit := parseIntQuery(c.Query("limit"), 20)
	offset := parseIntQuery(c.Query("offset"), 0)

	executions, err := h.executionRepo.FindByWorkflowID(c.Request.Context(), workflowUUID, limit, offset)
	if err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	total, err := h.executionRepo.CountByWorkflowID(c.Request.Context(), workflowUUID)
	if err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	out := make([]any, 0, len(executions))
	for _, e := range executions {
		out = append(out, appengine.ExecutionModelToDomain(e))
	}

	respondList(c, http.StatusOK, out, total, limit, offset)
}
