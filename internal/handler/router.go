package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kolson/planner/backend/internal/handler/brief"
	"github.com/kolson/planner/backend/internal/handler/chat"
	"github.com/kolson/planner/backend/internal/handler/persona"
	"github.com/kolson/planner/backend/internal/handler/session"
	"github.com/kolson/planner/backend/internal/logger"
	middlewarePkg "github.com/kolson/planner/backend/internal/middleware"
	personaModel "github.com/kolson/planner/backend/internal/model/persona"
	briefService "github.com/kolson/planner/backend/internal/service/brief"
	chatService "github.com/kolson/planner/backend/internal/service/chat"
	"github.com/kolson/planner/backend/pkg/utils"
)

// Dependencies 汇总路由所需的服务。存储未启用时 Chats 与 Briefs 为 nil。
type Dependencies struct {
	Assistant      *personaModel.Persona
	Chat           chat.Options
	Chats          *chatService.Service
	Briefs         *briefService.Service
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger.Standard(), NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatOpts := deps.Chat
	chatOpts.Chats = deps.Chats
	chatOpts.Briefs = deps.Briefs
	if deps.Assistant != nil && chatOpts.OwnerName == "" {
		chatOpts.OwnerName = deps.Assistant.Owner
	}

	chatHandler := chat.New(chatOpts)
	sessionHandler := session.New(deps.Chats, deps.Briefs)
	briefHandler := brief.New(deps.Briefs)

	r.Route("/api", func(api chi.Router) {
		if deps.Assistant != nil {
			persona.New(deps.Assistant).RegisterRoutes(api)
		}
		chatHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)
		briefHandler.RegisterRoutes(api)
	})

	return r
}
