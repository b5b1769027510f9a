package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/internal/service/execution"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

type ExecutionHandler struct {
	service execution.ExecutionService
	logger  logger.Logger
}

func NewExecutionHandler(service execution.ExecutionService, log logger.Logger) *ExecutionHandler {
	return &ExecutionHandler{service: service, logger: log}
}

// RunRequest selects the documents to process; empty means all.
type RunRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

// ExecutionDetail is an execution plus the documents it produced versions for.
type ExecutionDetail struct {
	*models.Execution
	Documents []*models.Document `json:"documents"`
}

func (h *ExecutionHandler) Run(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, h.logger, http.StatusBadRequest, "Invalid run request", err)
			return
		}
	}

	id, err := h.service.Trigger(c.Request.Context(), req.DocumentIDs)
	if err != nil {
		serviceError(c, h.logger, "Failed to trigger execution", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"execution_id": id,
		"status":       models.StatusPending,
	})
}

func (h *ExecutionHandler) List(c *gin.Context) {
	skip, limit, err := pagination(c)
	if err != nil {
		serviceError(c, h.logger, "Invalid pagination", err)
		return
	}
	execs, err := h.service.List(c.Request.Context(), skip, limit)
	if err != nil {
		serviceError(c, h.logger, "Failed to list executions", err)
		return
	}
	c.JSON(http.StatusOK, execs)
}

func (h *ExecutionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	exec, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		serviceError(c, h.logger, "Failed to get execution", err)
		return
	}
	docs, err := h.service.Targets(c.Request.Context(), id)
	if err != nil {
		serviceError(c, h.logger, "Failed to get execution documents", err)
		return
	}
	c.JSON(http.StatusOK, ExecutionDetail{Execution: exec, Documents: docs})
}
