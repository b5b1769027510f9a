package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/internal/service/document"
	"github.com/feichai0017/document-monitor/internal/service/execution"
	"github.com/feichai0017/document-monitor/internal/utils/validator"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// StatsProvider 汇总计数
type StatsProvider interface {
	Stats(ctx context.Context) (*models.Stats, error)
}

// JobCounter reports how many documents have an active schedule.
type JobCounter interface {
	JobCount() int
}

type Handlers struct {
	Document  *DocumentHandler
	Execution *ExecutionHandler
	System    *SystemHandler
}

func NewHandlers(
	documentService document.DocumentService,
	executionService execution.ExecutionService,
	stats StatsProvider,
	jobs JobCounter,
	log logger.Logger,
) *Handlers {
	log = log.Named("api")
	return &Handlers{
		Document:  NewDocumentHandler(documentService, validator.NewDocumentValidator(log, nil), log),
		Execution: NewExecutionHandler(executionService, log),
		System:    NewSystemHandler(stats, jobs, log),
	}
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleError 统一错误处理
func handleError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	fields := []logger.Field{logger.String("path", c.Request.URL.Path), logger.Int("status", status)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	// 5xx 不向客户端暴露内部错误
	response := ErrorResponse{Message: message}
	if err != nil && status < http.StatusInternalServerError {
		response.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, response)
}

// serviceError maps a service error to its HTTP status.
func serviceError(c *gin.Context, log logger.Logger, message string, err error) {
	handleError(c, log, statusFor(err), message, err)
}

// pagination reads skip and limit; a missing limit is returned as 0 so the
// service applies its own default.
func pagination(c *gin.Context) (int, int, error) {
	skip, err := queryInt(c, "skip")
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return 0, 0, err
	}
	return skip, limit, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Invalidf("query parameter %s must be a non-negative integer", name)
	}
	return n, nil
}
