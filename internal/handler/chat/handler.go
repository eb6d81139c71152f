package chat

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/kolson/planner/backend/internal/logger"
	"github.com/kolson/planner/backend/internal/model/chat"
	aiService "github.com/kolson/planner/backend/internal/service/ai"
	briefService "github.com/kolson/planner/backend/internal/service/brief"
	chatService "github.com/kolson/planner/backend/internal/service/chat"
	"github.com/kolson/planner/backend/internal/service/ratelimit"
	"github.com/kolson/planner/backend/pkg/utils"
)

// Options 描述聊天处理器的依赖。AI、Chats、Briefs 可以为 nil。
type Options struct {
	AI                 *aiService.Service
	MissingCredential  string
	Chats              *chatService.Service
	Briefs             *briefService.Service
	Limiter            *ratelimit.Limiter
	HistoryLimit       int
	StatelessTurnLimit int
	OwnerName          string
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	opts Options
	log  *log.Logger
}

// New 创建聊天处理器
func New(opts Options) *Handler {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.StatelessTurnLimit <= 0 {
		opts.StatelessTurnLimit = 8
	}
	if opts.OwnerName == "" {
		opts.OwnerName = "the site owner"
	}
	return &Handler{opts: opts, log: logger.For("chat")}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

type historyItem struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type chatRequest struct {
	Message   string        `json:"message"`
	SessionID string        `json:"session_id"`
	Messages  []historyItem `json:"messages"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error       string `json:"error"`
	UserMessage string `json:"userMessage"`
}

// handleChat 处理一轮对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.opts.AI == nil {
		missing := h.opts.MissingCredential
		if missing == "" {
			missing = "language model configuration"
		}
		h.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Server is missing %s.", missing))
		return
	}

	var payload chatRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	message := strings.TrimSpace(payload.Message)
	sessionID := strings.TrimSpace(payload.SessionID)
	stateful := sessionID != "" && h.opts.Chats != nil

	var history []chat.Turn
	if !stateful {
		history = h.statelessHistory(payload.Messages)
	}
	if message == "" && len(history) == 0 {
		h.respondError(w, http.StatusBadRequest, "A non-empty message is required.")
		return
	}

	if h.opts.Limiter != nil && !h.opts.Limiter.Allow(ratelimit.ClientKey(r)) {
		h.respondError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again shortly.")
		return
	}

	if stateful {
		h.handleSessionTurn(w, r, sessionID, message)
		return
	}

	turns := history
	if message != "" {
		turns = append(turns, chat.Turn{Role: chat.RoleUser, Content: message})
	}
	reply, err := h.opts.AI.GenerateReply(r.Context(), turns)
	if err != nil {
		h.respondReplyError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// handleSessionTurn persists both sides of the turn and queues extraction once the reply is written.
func (h *Handler) handleSessionTurn(w http.ResponseWriter, r *http.Request, sessionID, message string) {
	ctx := r.Context()

	if _, err := h.opts.Chats.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			h.respondError(w, http.StatusBadRequest, "Unknown session_id.")
			return
		}
		h.log.Error("load session failed", "session", sessionID, "err", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to load session.")
		return
	}

	if _, err := h.opts.Chats.SaveMessage(ctx, sessionID, chat.RoleUser, message); err != nil {
		h.log.Error("save user message failed", "session", sessionID, "err", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to save message.")
		return
	}

	messages, err := h.opts.Chats.LoadTranscript(ctx, sessionID, h.opts.HistoryLimit)
	if err != nil {
		h.log.Error("load transcript failed", "session", sessionID, "err", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to load conversation.")
		return
	}

	reply, err := h.opts.AI.GenerateReply(ctx, chat.Turns(messages))
	if err != nil {
		h.respondReplyError(w, err)
		return
	}

	if _, err := h.opts.Chats.SaveMessage(ctx, sessionID, chat.RoleAssistant, reply); err != nil {
		h.log.Warn("save assistant reply failed", "session", sessionID, "err", err)
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{Reply: reply})

	if h.opts.Briefs != nil {
		h.opts.Briefs.ScheduleRefresh(sessionID)
	}
}

func (h *Handler) statelessHistory(items []historyItem) []chat.Turn {
	turns := make([]chat.Turn, 0, len(items))
	for _, item := range items {
		role, ok := chat.ParseRole(item.Role)
		text := strings.TrimSpace(item.Text)
		if !ok || text == "" {
			continue
		}
		turns = append(turns, chat.Turn{Role: role, Content: text})
	}
	if len(turns) > h.opts.StatelessTurnLimit {
		turns = turns[len(turns)-h.opts.StatelessTurnLimit:]
	}
	return turns
}

func (h *Handler) respondReplyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, aiService.ErrNoUserTurn):
		h.respondError(w, http.StatusBadRequest, "The conversation must end with a user message.")
	case errors.Is(err, aiService.ErrEmptyReply):
		h.respondError(w, http.StatusBadGateway, "No text response returned by the model.")
	default:
		h.log.Warn("reply generation failed", "err", err)
		h.respondError(w, http.StatusBadGateway, err.Error())
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	utils.RespondJSON(w, status, errorResponse{
		Error:       message,
		UserMessage: FriendlyMessage(message, h.opts.OwnerName),
	})
}

// FriendlyMessage translates a raw failure into text that is safe to show visitors.
func FriendlyMessage(rawError, owner string) string {
	normalized := strings.ToLower(rawError)

	switch {
	case strings.Contains(normalized, "credit balance is too low"):
		return fmt.Sprintf("AI assistant is temporarily unavailable while usage credits are being configured. Please use the contact section below to reach %s directly.", owner)
	case strings.Contains(normalized, "invalid x-api-key"):
		return fmt.Sprintf("AI assistant is temporarily unavailable due to a configuration issue. Please use the contact section below to reach %s directly.", owner)
	case strings.Contains(normalized, "not_found_error") && strings.Contains(normalized, "model"):
		return fmt.Sprintf("AI assistant is temporarily unavailable due to a model configuration update. Please use the contact section below to reach %s directly.", owner)
	case strings.Contains(normalized, "rate limit"):
		return "The assistant is currently handling high traffic. Please wait a moment and try again."
	default:
		return "I hit a temporary issue. Please try again in a moment, or use the contact section below."
	}
}
