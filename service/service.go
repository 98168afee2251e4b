package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"challengerunner/executor"
	"challengerunner/internal"
	applog "challengerunner/logger"
	"challengerunner/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ErrInvalidRequest   = errors.New("invalid request parameters")
	ErrUnknownChallenge = errors.New("unknown challenge")
)

// Submitter queues a verification; *executor.WorkerPool implements it.
type Submitter interface {
	Submit(ctx context.Context, challengeDir, submission string) (*executor.VerificationResult, error)
}

type VerificationService struct {
	pool           Submitter
	challengesRoot string
	maxCodeLen     int
	logger         *zap.Logger
	streamer       *applog.LogStreamer
}

// NewVerificationService wires the queue to the challenge templates under
// challengesRoot. streamer may be nil.
func NewVerificationService(pool Submitter, challengesRoot string, maxCodeLen int, logger *zap.Logger, streamer *applog.LogStreamer) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationService{
		pool:           pool,
		challengesRoot: challengesRoot,
		maxCodeLen:     maxCodeLen,
		logger:         logger,
		streamer:       streamer,
	}
}

// Verify decodes, screens and runs a submission. The response is always
// filled in; the error only classifies failures for the transport:
// ErrInvalidRequest, executor.ErrQueueFull or an infrastructure error.
func (s *VerificationService) Verify(ctx context.Context, req model.VerifyRequest) (*model.VerificationResponse, error) {
	start := time.Now()
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	codeBytes, err := base64.StdEncoding.DecodeString(req.Code)
	if err != nil {
		return s.reject(requestID, "Failed to decode base64", err), fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	code := string(codeBytes)

	if err := internal.SanitizeCode(code, s.maxCodeLen); err != nil {
		return s.reject(requestID, "Code failed to pass sanitization", err), fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	challengeDir, err := ResolveChallengeDir(s.challengesRoot, req.ChallengeID)
	if err != nil {
		return s.reject(requestID, "Unknown challenge", err), fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	s.log(zapcore.InfoLevel, requestID, "Verification queued", map[string]any{
		"challenge": req.ChallengeID,
		"code_len":  len(code),
	}, nil)

	result, err := s.pool.Submit(ctx, challengeDir, code)
	if err != nil {
		resp := &model.VerificationResponse{
			RequestID:     requestID,
			Outcome:       "error",
			Error:         err.Error(),
			StatusMessage: "Failed to execute code",
		}
		if errors.Is(err, executor.ErrQueueFull) {
			resp.Outcome = "busy"
			resp.StatusMessage = "Server busy, try again later"
		}
		s.log(zapcore.ErrorLevel, requestID, "Verification failed", map[string]any{"challenge": req.ChallengeID}, err)
		return resp, err
	}

	resp := ToResponse(result)
	resp.RequestID = requestID
	resp.ExecutionTime = time.Since(start).String()

	s.log(zapcore.InfoLevel, requestID, "Verification completed", map[string]any{
		"challenge": req.ChallengeID,
		"outcome":   resp.Outcome,
		"passed":    resp.TestsPassed,
		"failed":    resp.TestsFailed,
		"duration":  result.Duration.String(),
	}, nil)
	return resp, nil
}

func (s *VerificationService) reject(requestID, status string, err error) *model.VerificationResponse {
	s.log(zapcore.WarnLevel, requestID, "Request rejected", map[string]any{"reason": status}, err)
	return &model.VerificationResponse{
		RequestID:     requestID,
		Outcome:       "invalid_request",
		Error:         err.Error(),
		StatusMessage: status,
	}
}

func (s *VerificationService) log(level zapcore.Level, requestID, message string, attrs map[string]any, err error) {
	if s.streamer != nil {
		s.streamer.Log(level, requestID, message, attrs, applog.LayerService, err)
		return
	}
	fields := []zap.Field{zap.String("request_id", requestID), zap.Any("attributes", attrs)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Log(level, message, fields...)
}

// ResolveChallengeDir maps a challenge id to its template directory. Ids
// may contain slashes for grouping but must stay inside root.
func ResolveChallengeDir(root, challengeID string) (string, error) {
	id := strings.TrimSpace(challengeID)
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrUnknownChallenge)
	}
	if filepath.IsAbs(id) || strings.ContainsRune(id, 0) {
		return "", fmt.Errorf("%w: %q", ErrUnknownChallenge, challengeID)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(absRoot, filepath.FromSlash(id))
	rel, err := filepath.Rel(absRoot, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the challenges root", ErrUnknownChallenge, challengeID)
	}
	return dir, nil
}

// ToResponse flattens a verdict into the wire response.
func ToResponse(result *executor.VerificationResult) *model.VerificationResponse {
	resp := &model.VerificationResponse{
		Success:          result.Success,
		Outcome:          result.OutcomeLabel(),
		Stdout:           result.Stdout,
		Stderr:           result.Stderr,
		TestsPassed:      result.TestsPassed,
		TestsFailed:      result.TestsFailed,
		TestsTotal:       result.TestsTotal,
		ResourceLimitHit: string(result.ResourceLimitHit),
	}

	switch o := result.Outcome.(type) {
	case *executor.CompileError:
		resp.CompileError = &model.CompileErrorInfo{
			Message: o.Message,
			File:    o.File,
			Line:    o.Line,
			Column:  o.Column,
		}
		resp.StatusMessage = "Compilation Error"
	case *executor.RuntimeError:
		resp.RuntimeError = &model.RuntimeErrorInfo{
			Kind:    string(o.Kind),
			Message: o.Message,
			Stderr:  o.Stderr,
		}
		resp.StatusMessage = "Runtime Error: " + o.String()
	default:
		if result.Success {
			resp.StatusMessage = "Success"
		} else {
			resp.StatusMessage = fmt.Sprintf("%d of %d tests failed", result.TestsFailed, result.TestsTotal)
		}
	}
	return resp
}
