package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/workflowkit/engine/internal/application/engine"
	"github.com/workflowkit/engine/internal/domain/repository"
	"github.com/workflowkit/engine/internal/infrastructure/logger"
	storagemodels "github.com/workflowkit/engine/internal/infrastructure/storage/models"
)

// WorkflowHandlers provides HTTP handlers for workflow CRUD endpoints
type WorkflowHandlers struct {
	workflowRepo repository.WorkflowRepository
	logger       *logger.Logger
}

func NewWorkflowHandlers(workflowRepo repository.WorkflowRepository, log *logger.Logger) *WorkflowHandlers {
	return &WorkflowHandlers{workflowRepo: workflowRepo, logger: log}
}

// HandleCreateWorkflow handles POST /api/v1/workflows
func (h *WorkflowHandlers) HandleCreateWorkflow(c *gin.Context) {
	var req struct {
		Name        string                 `json:"name" validate:"required"`
		Description string                 `json:"description,omitempty"`
		Variables   map[string]interface{} `json:"variables,omitempty"`
		Metadata    map[string]interface{} `json:"metadata,omitempty"`
	}

	if err := bindJSON(c, &req); err != nil {
		return
	}

	if req.Name == "" {
		respondAPIError(c, NewAPIError("NAME_REQUIRED", "workflow name is required", http.StatusBadRequest))
		return
	}

	workflowModel := &storagemodels.WorkflowModel{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Status:      "draft",
		Version:     1,
		Variables:   storagemodels.JSONBMap(req.Variables),
		Metadata:    storagemodels.JSONBMap(req.Metadata),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := h.workflowRepo.Create(c.Request.Context(), workflowModel); err != nil {
		h.logger.Error("failed to create workflow", "error", err, "workflow_name", req.Name, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusCreated, engine.WorkflowModelToDomain(workflowModel))
}

// HandleGetWorkflow handles GET /api/v1/workflows/:workflow_id
func (h *WorkflowHandlers) HandleGetWorkflow(c *gin.Context) {
	workflowID, ok := getParam(c, "workflow_id")
	if !ok {
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondAPIErrorWithRequestID(c, ErrInvalidID)
		return
	}

	workflowModel, err := h.workflowRepo.FindByIDWithRelations(c.Request.Context(), workflowUUID)
	if err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, engine.WorkflowModelToDomain(workflowModel))
}

// HandleListWorkflows handles GET /api/v1/workflows
func (h *WorkflowHandlers) HandleListWorkflows(c *gin.Context) {
	limit := parseIntQuery(c.Query("limit"), 20)
	offset := parseIntQuery(c.Query("offset"), 0)

	var (
		workflows []*storagemodels.WorkflowModel
		total     int
		err       error
	)

	if status := c.Query("status"); status != "" {
		workflows, err = h.workflowRepo.FindByStatus(c.Request.Context(), status, limit, offset)
		if err == nil {
			total, err = h.workflowRepo.CountByStatus(c.Request.Context(), status)
		}
	} else {
		workflows, err = h.workflowRepo.FindAll(c.Request.Context(), limit, offset)
		if err == nil {
			total, err = h.workflowRepo.Count(c.Request.Context())
		}
	}
	if err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	out := make([]any, 0, len(workflows))
	for _, w := range workflows {
		out = append(out, engine.WorkflowModelToDomain(w))
	}

	respondList(c, http.StatusOK, out, total, limit, offset)
}

// HandleUpdateWorkflow handles PUT /api/v1/workflows/:workflow_id
func (h *WorkflowHandlers) HandleUpdateWorkflow(c *gin.Context) {
	workflowID, ok := getParam(c, "workflow_id")
	if !ok {
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondAPIErrorWithRequestID(c, ErrInvalidID)
		return
	}

	var req struct {
		Name        *string                 `json:"name,omitempty"`
		Description *string                 `json:"description,omitempty"`
		Status      *string                `json:"status,omitempty"`
		Variables   map[string]interface{} `json:"variables,omitempty"`
		Metadata    map[string]interface{} `json:"metadata,omitempty"`
	}
	if err := bindJSON(c, &req); err != nil {
		return
	}

	workflowModel, err := h.workflowRepo.FindByID(c.Request.Context(), workflowUUID)
	if err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	if req.Name != nil {
		workflowModel.Name = *req.Name
	}
	if req.Description != nil {
		workflowModel.Description = *req.Description
	}
	if req.Status != nil {
		workflowModel.Status = *req.Status
	}
	if req.Variables != nil {
		workflowModel.Variables = storagemodels.JSONBMap(req.Variables)
	}
	if req.Metadata != nil {
		workflowModel.Metadata = storagemodels.JSONBMap(req.Metadata)
	}
	workflowModel.UpdatedAt = time.Now()

	if err := h.workflowRepo.Update(c.Request.Context(), workflowModel); err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, engine.WorkflowModelToDomain(workflowModel))
}

// HandleDeleteWorkflow handles DELETE /api/v1/workflows/:workflow_id
func (h *WorkflowHandlers) HandleDeleteWorkflow(c *gin.Context) {
	workflowID, ok := getParam(c, "workflow_id")
	if !ok {
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondAPIErrorWithRequestID(c, ErrInvalidID)
		return
	}

	if err := h.workflowRepo.Delete(c.Request.Context(), workflowUUID); err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	c.Status(http.StatusNoContent)
}
