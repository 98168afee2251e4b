package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"challengerunner/executor"
	"challengerunner/model"
	"challengerunner/pkg"
	"challengerunner/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Verifier is the verification service as seen by the HTTP layer.
type Verifier interface {
	Verify(ctx context.Context, req model.VerifyRequest) (*model.VerificationResponse, error)
}

// Pinger reports whether the container engine is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type VerificationHandler struct {
	verifier Verifier
	engine   Pinger
	logger   *zap.Logger
}

func NewVerificationHandler(verifier Verifier, engine Pinger, logger *zap.Logger) *VerificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationHandler{verifier: verifier, engine: engine, logger: logger}
}

// SetupRoutes registers the API. Only the verify endpoint is rate limited.
func SetupRoutes(router *gin.Engine, h *VerificationHandler, limiter *pkg.RateLimiter) {
	router.GET("/health", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	if limiter != nil {
		api.Use(limiter.Limit())
	}
	api.POST("/verify", h.HandleVerify)
}

func (h *VerificationHandler) HandleVerify(c *gin.Context) {
	var req model.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.VerificationResponse{
			Error:         err.Error(),
			Outcome:       "invalid_request",
			StatusMessage: "Invalid Request Format",
		})
		return
	}
	if req.RequestID == "" {
		req.RequestID = c.GetHeader("X-Request-ID")
	}

	resp, err := h.verifier.Verify(c.Request.Context(), req)
	if resp == nil {
		resp = &model.VerificationResponse{RequestID: req.RequestID, Outcome: "error", StatusMessage: "Failed to execute code"}
		if err != nil {
			resp.Error = err.Error()
		}
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Verification failed",
			zap.String("challenge", req.ChallengeID),
			zap.String("request_id", resp.RequestID),
			zap.Error(err))
	}
	c.JSON(status, resp)
}

// statusFor maps service errors to HTTP codes. A failing submission is a
// 200 with success=false.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, executor.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *VerificationHandler) HandleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.engine.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "docker": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
