package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kolson/planner/backend/internal/model/persona"
	"github.com/kolson/planner/backend/pkg/utils"
)

// Handler 助手人设的HTTP处理器
type Handler struct {
	assistant *persona.Persona
}

// New 创建persona处理器
func New(assistant *persona.Persona) *Handler {
	return &Handler{
		assistant: assistant,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/assistant", h.handleGetAssistant)
}

// handleGetAssistant 返回助手的公开信息
func (h *Handler) handleGetAssistant(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.assistant)
}
