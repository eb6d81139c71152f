package brief

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/kolson/planner/backend/internal/analysis/completeness"
	"github.com/kolson/planner/backend/internal/logger"
	briefModel "github.com/kolson/planner/backend/internal/model/brief"
	briefService "github.com/kolson/planner/backend/internal/service/brief"
	"github.com/kolson/planner/backend/pkg/utils"
)

// Handler 简报接口的HTTP处理器
type Handler struct {
	briefs *briefService.Service
	log    *log.Logger
}

// New 创建简报处理器，briefs 为 nil 表示存储未启用
func New(briefs *briefService.Service) *Handler {
	return &Handler{briefs: briefs, log: logger.For("brief")}
}

// RegisterRoutes 注册简报相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/brief", h.handleGet)
	r.Get("/brief/public", h.handleGetPublic)
}

type sessionBriefResponse struct {
	Brief        *briefModel.SessionView `json:"brief"`
	Completeness *completeness.Result    `json:"completeness,omitempty"`
}

type publicBriefResponse struct {
	Brief briefModel.PublicView `json:"brief"`
}

// handleGet 返回会话对应的简报
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if h.briefs == nil {
		utils.RespondJSON(w, http.StatusOK, sessionBriefResponse{})
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	b, err := h.briefs.Get(r.Context(), sessionID)
	if errors.Is(err, briefService.ErrBriefNotFound) {
		utils.RespondJSON(w, http.StatusOK, sessionBriefResponse{})
		return
	}
	if err != nil {
		h.log.Error("load brief failed", "session", sessionID, "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to load brief")
		return
	}

	view := b.SessionView()
	score := completeness.Analyze(b.Fields)
	utils.RespondJSON(w, http.StatusOK, sessionBriefResponse{Brief: &view, Completeness: &score})
}

// handleGetPublic 通过分享链接返回只读简报
func (h *Handler) handleGetPublic(w http.ResponseWriter, r *http.Request) {
	if h.briefs == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	b, err := h.briefs.GetPublic(r.Context(), r.URL.Query().Get("id"))
	switch {
	case errors.Is(err, briefModel.ErrInvalidShareID):
		utils.RespondError(w, http.StatusBadRequest, "Invalid brief ID")
		return
	case errors.Is(err, briefService.ErrBriefNotFound):
		utils.RespondError(w, http.StatusNotFound, "Brief not found")
		return
	case err != nil:
		h.log.Error("load public brief failed", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to load brief")
		return
	}

	utils.RespondJSON(w, http.StatusOK, publicBriefResponse{Brief: b.PublicView()})
}
