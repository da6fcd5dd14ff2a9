package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/anser-ai/anser/internal/knowledge"
	"github.com/anser-ai/anser/internal/log"
)

// AgentStore loads agent configuration.
type AgentStore interface {
	GetAgent(ctx context.Context, id uuid.UUID) (*knowledge.Agent, error)
}

// Answerer runs one conversation turn under the agent's fallback policy.
type Answerer interface {
	Answer(ctx context.Context, agent *knowledge.Agent, question string) (string, error)
}

// ChatHandler serves the conversation endpoint.
type ChatHandler struct {
	agents    AgentStore
	responder Answerer
	logger    log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(agents AgentStore, responder Answerer, logger log.Logger) *ChatHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &ChatHandler{agents: agents, responder: responder, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
}

type chatRequest struct {
	AgentID  string `json:"agent_id"`
	Question string `json:"question"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_agent_id", "agent_id must be a UUID")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "empty_question", "question is required")
		return
	}

	agent, err := h.agents.GetAgent(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "agent does not exist")
			return
		}
		h.logger.Error("failed to load agent", "id", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "agent_load_failed", "could not load agent")
		return
	}

	answer, err := h.responder.Answer(r.Context(), agent, req.Question)
	if err != nil {
		// Only reachable when the agent has no fallback message.
		h.logger.Error("conversation turn failed", "agent", agentID, "error", err)
		writeError(w, http.StatusBadGateway, "turn_failed", "could not produce an answer")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Answer: answer})
}
