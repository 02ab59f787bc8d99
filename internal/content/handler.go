package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"studydeck/internal/content/model"
	"studydeck/internal/content/reorder"
	"studydeck/internal/content/service"
	"studydeck/middleware"
	"studydeck/pkg/logger"
)

const tokenTTL = 12 * time.Hour

type ContentHandler struct {
	Service           *service.ContentService
	Auth              *middleware.Auth
	AdminPasswordHash []byte
}

func NewContentHandler(service *service.ContentService, auth *middleware.Auth, adminPasswordHash string) *ContentHandler {
	return &ContentHandler{Service: service, Auth: auth, AdminPasswordHash: []byte(adminPasswordHash)}
}

// status maps service errors onto HTTP codes.
func status(err error) int {
	switch {
	case errors.Is(err, service.ErrTabNotFound), errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmptyName), errors.Is(err, service.ErrInvalidID),
		errors.Is(err, model.ErrUnknownType), errors.Is(err, model.ErrOptionIndex),
		errors.Is(err, model.ErrNotMCQ), errors.Is(err, reorder.ErrDuplicateID),
		errors.Is(err, reorder.ErrEmptyID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func fail(w http.ResponseWriter, action string, err error) {
	code := status(err)
	if code == http.StatusInternalServerError {
		logger.Sugar.Errorf("Handler: Failed to %s: %v", action, err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Login exchanges the admin password for an admin token. Failures come back
// as JSON so the login form can show them inline.
func (h *ContentHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Password is required")
		return
	}
	if len(h.AdminPasswordHash) == 0 {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Admin login is not configured")
		return
	}
	if err := bcrypt.CompareHashAndPassword(h.AdminPasswordHash, []byte(req.Password)); err != nil {
		logger.Sugar.Warnf("Failed admin login from %s", r.RemoteAddr)
		middleware.WriteError(w, http.StatusUnauthorized, "Wrong password")
		return
	}
	token, err := h.Auth.IssueToken("admin", middleware.RoleAdmin, tokenTTL)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to issue token: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, model.LoginResponse{Token: token})
}

func (h *ContentHandler) ListTabs(w http.ResponseWriter, r *http.Request) {
	tabs, err := h.Service.ListTabs(r.Context())
	if err != nil {
		fail(w, "list tabs", err)
		return
	}
	writeJSON(w, http.StatusOK, tabs)
}

func (h *ContentHandler) CreateTab(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id, err := h.Service.AddTab(r.Context(), req.Name)
	if err != nil {
		fail(w, "create tab", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.CreateResponse{ID: id})
}

func (h *ContentHandler) RenameTab(w http.ResponseWriter, r *http.Request) {
	var req model.RenameTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Service.RenameTab(r.Context(), mux.Vars(r)["tabId"], req.Name); err != nil {
		fail(w, "rename tab", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContentHandler) DeleteTab(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteTab(r.Context(), mux.Vars(r)["tabId"]); err != nil {
		fail(w, "delete tab", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContentHandler) ListContent(w http.ResponseWriter, r *http.Request) {
	tabID := mux.Vars(r)["tabId"]
	if _, err := h.Service.GetTab(r.Context(), tabID); err != nil {
		fail(w, "list content", err)
		return
	}
	items, err := h.Service.ListContent(r.Context(), tabID)
	if err != nil {
		fail(w, "list content", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ContentHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id, err := h.Service.AddContent(r.Context(), mux.Vars(r)["tabId"], req.Type)
	if err != nil {
		fail(w, "create content", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.CreateResponse{ID: id})
}

func (h *ContentHandler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Service.DeleteContent(r.Context(), vars["tabId"], vars["itemId"]); err != nil {
		fail(w, "delete content", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContentHandler) SetCorrect(w http.ResponseWriter, r *http.Request) {
	var req model.SetCorrectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	if err := h.Service.SetCorrectOption(r.Context(), vars["tabId"], vars["itemId"], req.Index); err != nil {
		fail(w, "set correct option", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContentHandler) CheckAnswer(w http.ResponseWriter, r *http.Request) {
	var req model.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	res, err := h.Service.CheckAnswer(r.Context(), vars["tabId"], vars["itemId"], req.Selected)
	if err != nil {
		fail(w, "check answer", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ContentHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req model.ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Service.Reorder(r.Context(), mux.Vars(r)["tabId"], req.IDs); err != nil {
		fail(w, "reorder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
