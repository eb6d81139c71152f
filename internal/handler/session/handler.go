package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/kolson/planner/backend/internal/logger"
	briefModel "github.com/kolson/planner/backend/internal/model/brief"
	"github.com/kolson/planner/backend/internal/model/chat"
	briefService "github.com/kolson/planner/backend/internal/service/brief"
	chatService "github.com/kolson/planner/backend/internal/service/chat"
	"github.com/kolson/planner/backend/pkg/utils"
)

// Handler 会话接口的HTTP处理器。存储未启用时 chats 与 briefs 为 nil。
type Handler struct {
	chats  *chatService.Service
	briefs *briefService.Service
	log    *log.Logger
}

// New 创建会话处理器
func New(chats *chatService.Service, briefs *briefService.Service) *Handler {
	return &Handler{chats: chats, briefs: briefs, log: logger.For("session")}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleStart)
	r.Patch("/sessions", h.handleShare)
}

type sessionRef struct {
	ID string `json:"id"`
}

type startResponse struct {
	Session  sessionRef              `json:"session"`
	Messages []chat.Message          `json:"messages"`
	Brief    *briefModel.SessionView `json:"brief"`
}

type shareResponse struct {
	Success bool   `json:"success"`
	ShareID string `json:"share_id,omitempty"`
}

// handleStart 创建或恢复访客会话
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if h.chats == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "Database not configured")
		return
	}

	var payload struct {
		VisitorID string `json:"visitor_id"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(payload.VisitorID) == "" {
		utils.RespondError(w, http.StatusBadRequest, "visitor_id is required")
		return
	}

	ctx := r.Context()
	session, err := h.chats.StartSession(ctx, payload.VisitorID)
	if err != nil {
		h.log.Error("start session failed", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	resp := startResponse{Session: sessionRef{ID: session.ID}, Messages: []chat.Message{}}

	// History and brief are best effort; a fresh session is still usable without them.
	messages, err := h.chats.LoadTranscript(ctx, session.ID, chatService.DefaultResumeLimit)
	if err != nil {
		h.log.Warn("load history failed", "session", session.ID, "err", err)
	} else if len(messages) > 0 {
		resp.Messages = messages
	}

	if h.briefs != nil {
		b, err := h.briefs.Get(ctx, session.ID)
		switch {
		case err == nil:
			view := b.SessionView()
			resp.Brief = &view
		case !errors.Is(err, briefService.ErrBriefNotFound):
			h.log.Warn("load brief failed", "session", session.ID, "err", err)
		}
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleShare 记录联系方式并将简报标记为已分享
func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	if h.chats == nil || h.briefs == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "Database not configured")
		return
	}

	var payload struct {
		SessionID string `json:"session_id"`
		Email     string `json:"email"`
		Name      string `json:"name"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	ctx := r.Context()
	err := h.chats.UpdateContact(ctx, sessionID, chat.ContactUpdate{Email: payload.Email, Name: payload.Name})
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.log.Error("update contact failed", "session", sessionID, "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update session")
		return
	}

	shared, err := h.briefs.Share(ctx, sessionID, payload.Email)
	if err != nil {
		h.log.Error("share brief failed", "session", sessionID, "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to share brief")
		return
	}

	utils.RespondJSON(w, http.StatusOK, shareResponse{Success: true, ShareID: shared.ShareID})
}
