package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-monitor/pkg/logger"
)

type SystemHandler struct {
	stats  StatsProvider
	jobs   JobCounter
	logger logger.Logger
}

func NewSystemHandler(stats StatsProvider, jobs JobCounter, log logger.Logger) *SystemHandler {
	return &SystemHandler{stats: stats, jobs: jobs, logger: log}
}

func (h *SystemHandler) Stats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		serviceError(c, h.logger, "Failed to get stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *SystemHandler) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.jobs != nil {
		body["scheduled_jobs"] = h.jobs.JobCount()
	}
	c.JSON(http.StatusOK, body)
}
