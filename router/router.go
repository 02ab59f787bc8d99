package router

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studydeck/config"
	contentHandler "studydeck/internal/content"
	"studydeck/internal/content/repository"
	"studydeck/internal/content/service"
	"studydeck/middleware"
	"studydeck/socket"
	"studydeck/store"
)

// Setup wires the REST API, the websocket endpoint and the metrics endpoint.
// REST calls share one server-side store connection.
func Setup(cfg config.Config, tree *store.Tree, hub *socket.Hub) http.Handler {
	r := mux.NewRouter()
	auth := middleware.NewAuth(cfg.JWTSecret)

	// WebSocket
	r.Handle("/ws", auth.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r, middleware.UserID(r.Context()), middleware.Role(r.Context()))
	})))

	// REST API
	contentRepo := repository.NewContentRepository(tree.Connect())
	contentService := service.NewContentService(contentRepo)
	h := contentHandler.NewContentHandler(contentService, auth, cfg.AdminPasswordHash)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/admin/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/tabs", h.ListTabs).Methods(http.MethodGet)
	api.HandleFunc("/tabs/{tabId}/content", h.ListContent).Methods(http.MethodGet)
	api.HandleFunc("/tabs/{tabId}/content/{itemId}/check", h.CheckAnswer).Methods(http.MethodPost)

	admin := func(f http.HandlerFunc) http.Handler {
		return auth.AuthMiddleware(middleware.AdminOnly(f))
	}
	api.Handle("/tabs", admin(h.CreateTab)).Methods(http.MethodPost)
	api.Handle("/tabs/{tabId}", admin(h.RenameTab)).Methods(http.MethodPut)
	api.Handle("/tabs/{tabId}", admin(h.DeleteTab)).Methods(http.MethodDelete)
	api.Handle("/tabs/{tabId}/order", admin(h.Reorder)).Methods(http.MethodPut)
	api.Handle("/tabs/{tabId}/content", admin(h.CreateContent)).Methods(http.MethodPost)
	api.Handle("/tabs/{tabId}/content/{itemId}", admin(h.DeleteContent)).Methods(http.MethodDelete)
	api.Handle("/tabs/{tabId}/content/{itemId}/correct", admin(h.SetCorrect)).Methods(http.MethodPut)

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return middleware.CORSMiddleware(cfg.AllowedOrigins)(r)
}
