package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/siteintent/internal/metrics"
	"github.com/ppiankov/siteintent/internal/model"
	"github.com/ppiankov/siteintent/internal/publish"
)

// PublishOutcome is the publish gate decision and, when it passed, the
// result of the push
type PublishOutcome struct {
	Gate    model.GateDecision `json:"gate"`
	Payload publish.Payload    `json:"payload,omitempty"`
	Pushed  bool               `json:"pushed"`
	Error   string             `json:"error,omitempty"`
}

// Publish re-checks required fields against result, applies the thin
// payload guard and hands the payload to pusher. The gate decision is
// stored on result and is not changed by a push failure. A nil pusher
// evaluates the gate only.
func (p *Pipeline) Publish(ctx context.Context, result *model.BuildResult, pusher publish.Pusher) (*PublishOutcome, error) {
	if result == nil {
		return nil, fmt.Errorf("publish: nil build result")
	}
	logger := p.logger.With(zap.String("request_id", result.RequestID))

	payload := publish.BuildPayload(result.Fields, p.intents)
	gate := p.scorer.Publish(result.ResolveGate, result.Fields, p.intents, payload.Sendable())
	result.PublishGate = &gate
	metrics.ObserveGate(string(gate.Signal.Type), gate.Pass, string(gate.Reason))

	out := &PublishOutcome{Gate: gate, Payload: payload}
	if !gate.Pass {
		logger.Info("publish blocked", zap.String("reason", string(gate.Reason)), zap.Strings("missing", gate.Missing))
		return out, nil
	}
	if pusher == nil {
		return out, nil
	}

	if err := pusher.Push(ctx, result.RequestID, payload); err != nil {
		logger.Warn("push failed", zap.Error(err))
		out.Error = err.Error()
		return out, fmt.Errorf("push: %w", err)
	}
	out.Pushed = true
	logger.Info("payload pushed", zap.Int("keys", payload.Sendable()))
	return out, nil
}
