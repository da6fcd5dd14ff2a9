package conversation

import (
	"context"

	"github.com/anser-ai/anser/internal/knowledge"
	"github.com/anser-ai/anser/internal/log"
)

// Responder wraps the orchestrator with an agent's fallback policy: the end
// user always gets a response when the agent configures a fallback message.
type Responder struct {
	orchestrator *Orchestrator
	logger       log.Logger
}

// NewResponder creates a Responder.
func NewResponder(orchestrator *Orchestrator, logger log.Logger) *Responder {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Responder{orchestrator: orchestrator, logger: logger}
}

// Answer runs a turn scoped to the agent's knowledge sources. When the turn
// fails and the agent has a fallback message, that message is returned with a
// nil error; the cause is logged, never discarded. Without a fallback the
// underlying error propagates.
func (r *Responder) Answer(ctx context.Context, agent *knowledge.Agent, question string) (string, error) {
	turn := r.orchestrator.Run(ctx, agent.WorkspaceID, question, agent.KnowledgeSources)
	if turn.Err == nil {
		return turn.Answer, nil
	}

	if agent.FallbackMessage != "" {
		r.logger.Warn("answering with fallback message",
			"agent", agent.ID, "workspace", agent.WorkspaceID, "error", turn.Err)
		return agent.FallbackMessage, nil
	}
	return "", turn.Err
}
