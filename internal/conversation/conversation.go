// Package conversation runs one question-answering turn: retrieve grounding
// passages for the question, then generate an answer from them.
//
// A turn is a small state machine. Retrieval and generation each map to a
// state, and any provider failure moves the turn to a terminal failed state.
// State lives in the Turn value, never in the orchestrator, so concurrent
// turns share nothing.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/anser-ai/anser/internal/log"
)

// State names a phase of a conversation turn.
type State string

const (
	StateStart      State = "start"
	StateRetrieving State = "retrieving"
	StateGenerating State = "generating"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Retriever supplies grounding passages for a question.
type Retriever interface {
	Retrieve(ctx context.Context, workspaceID uuid.UUID, query string, documentIDs []string) ([]string, error)
}

// Generator produces the answer text from a composed prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Turn is the state of one question through the pipeline.
type Turn struct {
	Question    string
	WorkspaceID uuid.UUID
	DocumentIDs []string

	State    State
	Passages []string
	Answer   string
	Err      error
}

// Orchestrator sequences retrieval then generation.
type Orchestrator struct {
	retriever Retriever
	generator Generator
	logger    log.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(retriever Retriever, generator Generator, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		retriever: retriever,
		generator: generator,
		logger:    logger,
	}
}

// Run executes a full turn. The returned Turn always carries its terminal
// state; on failure Turn.Err holds the cause and the answer is empty.
// Generation is never attempted after a retrieval failure. No stage retries:
// retries belong to the provider adapters where they cannot duplicate work.
func (o *Orchestrator) Run(ctx context.Context, workspaceID uuid.UUID, question string, documentIDs []string) *Turn {
	turn := &Turn{
		Question:    question,
		WorkspaceID: workspaceID,
		DocumentIDs: documentIDs,
		State:       StateStart,
	}

	turn.State = StateRetrieving
	passages, err := o.retriever.Retrieve(ctx, workspaceID, question, documentIDs)
	if err != nil {
		turn.State = StateFailed
		turn.Err = fmt.Errorf("retrieve: %w", err)
		o.logger.Error("turn failed during retrieval", "workspace", workspaceID, "error", err)
		return turn
	}
	turn.Passages = passages

	// An empty passage list is a valid turn: the prompt tells the model to
	// admit it instead of guessing.
	turn.State = StateGenerating
	answer, err := o.generator.Generate(ctx, composePrompt(question, passages))
	if err != nil {
		turn.State = StateFailed
		turn.Err = fmt.Errorf("generate: %w", err)
		o.logger.Error("turn failed during generation", "workspace", workspaceID, "error", err)
		return turn
	}

	turn.State = StateDone
	turn.Answer = answer
	return turn
}

// composePrompt grounds the model in the retrieved passages and instructs it
// to refuse rather than invent when the context has no answer.
func composePrompt(question string, passages []string) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. ")
	b.WriteString("If the context does not contain the answer, say you don't know.\n\n")
	b.WriteString("Context:\n")
	if len(passages) == 0 {
		b.WriteString("(no relevant documents found)\n")
	}
	for _, p := range passages {
		b.WriteString("- ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
