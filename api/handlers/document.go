package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-monitor/internal/fetcher"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/internal/service/document"
	"github.com/feichai0017/document-monitor/internal/utils/validator"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

type DocumentHandler struct {
	service   document.DocumentService
	validator *validator.DocumentValidator
	logger    logger.Logger
}

func NewDocumentHandler(service document.DocumentService, v *validator.DocumentValidator, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{service: service, validator: v, logger: log}
}

func (h *DocumentHandler) List(c *gin.Context) {
	skip, limit, err := pagination(c)
	if err != nil {
		serviceError(c, h.logger, "Invalid pagination", err)
		return
	}
	docs, err := h.service.List(c.Request.Context(), skip, limit)
	if err != nil {
		serviceError(c, h.logger, "Failed to list documents", err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *DocumentHandler) Create(c *gin.Context) {
	var cfg models.DocumentConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid document config", err)
		return
	}
	res, err := h.service.Create(c.Request.Context(), cfg)
	if err != nil {
		serviceError(c, h.logger, "Failed to create document", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, h.logger, "Failed to get document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Update(c *gin.Context) {
	var cfg models.DocumentConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid document config", err)
		return
	}
	doc, err := h.service.Update(c.Request.Context(), c.Param("id"), cfg)
	if err != nil {
		serviceError(c, h.logger, "Failed to update document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		serviceError(c, h.logger, "Failed to delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted", "id": id})
}

func (h *DocumentHandler) Versions(c *gin.Context) {
	versions, err := h.service.Versions(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, h.logger, "Failed to list versions", err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// Import accepts a JSON list of document configs.
func (h *DocumentHandler) Import(c *gin.Context) {
	var configs []models.DocumentConfig
	if err := c.ShouldBindJSON(&configs); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid config list", err)
		return
	}
	res, err := h.service.Import(c.Request.Context(), configs)
	if err != nil {
		serviceError(c, h.logger, "Failed to import configs", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *DocumentHandler) Content(c *gin.Context) {
	segments, err := h.service.Content(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, h.logger, "Failed to load version content", err)
		return
	}
	c.JSON(http.StatusOK, segments)
}

func (h *DocumentHandler) Matches(c *gin.Context) {
	report, err := h.service.KeywordMatches(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, h.logger, "Failed to compute keyword matches", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Upload 上传源文件
func (h *DocumentHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid file upload", err)
		return
	}

	result, err := h.validator.ValidateUpload(header)
	if err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to validate upload", err)
		return
	}
	if !result.IsValid {
		h.logger.Warn("Upload rejected",
			logger.String("filename", header.Filename),
			logger.Any("errors", result.Errors))
		c.AbortWithStatusJSON(http.StatusBadRequest, result)
		return
	}

	f, err := header.Open()
	if err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to open upload", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to read upload", err)
		return
	}

	res, err := h.service.Upload(c.Request.Context(), header.Filename, data, fetcher.ContentTypeForPath(header.Filename))
	if err != nil {
		serviceError(c, h.logger, "Failed to store upload", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
