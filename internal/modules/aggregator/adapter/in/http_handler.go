package in

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	hclog "github.com/hashicorp/go-hclog"

	aggregatordto "studyrun/internal/modules/aggregator/dto"
	aggregatorin "studyrun/internal/modules/aggregator/port/in"
	apperrors "studyrun/internal/platform/errors"
)

// HTTPHandler exposes the aggregator over JSON.
type HTTPHandler struct {
	usecase aggregatorin.Usecase
	log     hclog.Logger
	started time.Time
}

func NewHTTPHandler(usecase aggregatorin.Usecase, log hclog.Logger) *HTTPHandler {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &HTTPHandler{usecase: usecase, log: log.Named("http"), started: time.Now().UTC()}
}

// Router builds the gin engine. Mode is left to the caller.
func (h *HTTPHandler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.logRequests())

	router.GET("/health", h.handleHealth)
	api := router.Group("/api")
	{
		api.POST("/action", h.handleAction)
		api.GET("/sessions/:code", h.handleSummary)
		api.POST("/sessions/:code/repair", h.handleRepair)
	}
	return router
}

func (h *HTTPHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *HTTPHandler) handleAction(c *gin.Context) {
	var req aggregatordto.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, aggregatordto.ActionResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if err := h.usecase.Apply(c.Request.Context(), req); err != nil {
		status, retryable := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("apply action", "action", req.Action, "code", req.SessionCode, "error", err)
		}
		c.JSON(status, aggregatordto.ActionResponse{Error: err.Error(), Retryable: retryable})
		return
	}
	c.JSON(http.StatusOK, aggregatordto.ActionResponse{Success: true})
}

func (h *HTTPHandler) handleSummary(c *gin.Context) {
	out, err := h.usecase.Summary(c.Request.Context(), c.Param("code"))
	if err != nil {
		status, _ := statusFor(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *HTTPHandler) handleRepair(c *gin.Context) {
	out, err := h.usecase.Repair(c.Request.Context(), c.Param("code"))
	if err != nil {
		status, _ := statusFor(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *HTTPHandler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("request", "method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status(), "took", time.Since(start))
	}
}

// statusFor maps an error to an HTTP status and whether the client may retry.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, apperrors.ErrUnknownAction), errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, false
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, apperrors.ErrLockTimeout):
		return http.StatusServiceUnavailable, true
	default:
		return http.StatusInternalServerError, true
	}
}
