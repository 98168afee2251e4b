package natshandler

import (
	"context"
	"encoding/json"

	"challengerunner/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// QueueGroup spreads requests across every running instance.
const QueueGroup = "challenge-runners"

type Verifier interface {
	Verify(ctx context.Context, req model.VerifyRequest) (*model.VerificationResponse, error)
}

// HandleVerifyRequest decodes one request and returns the encoded reply.
// Malformed input still gets a reply so that requesters never hang.
func HandleVerifyRequest(ctx context.Context, data []byte, svc Verifier, logger *zap.Logger) []byte {
	var req model.VerifyRequest
	var resp *model.VerificationResponse

	if err := json.Unmarshal(data, &req); err != nil {
		logger.Warn("Failed to parse verification request", zap.Error(err))
		resp = &model.VerificationResponse{
			Outcome:       "invalid_request",
			Error:         err.Error(),
			StatusMessage: "Invalid Request Format",
		}
	} else {
		var verr error
		resp, verr = svc.Verify(ctx, req)
		if verr != nil {
			logger.Warn("Verification did not produce a verdict",
				zap.String("challenge", req.ChallengeID),
				zap.String("request_id", req.RequestID),
				zap.Error(verr))
		}
		if resp == nil {
			resp = &model.VerificationResponse{RequestID: req.RequestID, Outcome: "error", StatusMessage: "Failed to execute code"}
		}
	}

	resData, err := json.Marshal(resp)
	if err != nil {
		logger.Error("Failed to encode verification response", zap.Error(err))
		return []byte(`{"success":false,"outcome":"error","status_message":"internal error"}`)
	}
	return resData
}

// Subscribe serves request/reply verifications on subject. Each message is
// handled in its own goroutine; the worker pool bounds actual concurrency.
func Subscribe(ctx context.Context, nc *nats.Conn, subject string, svc Verifier, logger *zap.Logger) (*nats.Subscription, error) {
	return nc.QueueSubscribe(subject, QueueGroup, func(msg *nats.Msg) {
		go func() {
			reply := HandleVerifyRequest(ctx, msg.Data, svc, logger)
			if msg.Reply == "" {
				return
			}
			// Send response back to the requester
			if err := msg.Respond(reply); err != nil {
				logger.Error("Failed to publish verification reply", zap.String("subject", msg.Reply), zap.Error(err))
			}
		}()
	})
}
