package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/streamchat/backend/internal/model/user"
	authService "github.com/zhouzirui/streamchat/backend/internal/service/auth"
	"github.com/zhouzirui/streamchat/backend/pkg/utils"
)

// Handler 认证相关的HTTP处理器
type Handler struct {
	authSvc *authService.Service
}

// New 创建认证处理器
func New(authSvc *authService.Service) *Handler {
	return &Handler{authSvc: authSvc}
}

// RegisterRoutes 注册认证相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func toUserResponse(u user.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

// handleRegister 注册新用户
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.authSvc.Register(r.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, authService.ErrMissingFields):
			utils.RespondError(w, http.StatusBadRequest, "Missing fields")
		case errors.Is(err, authService.ErrEmailTaken):
			utils.RespondError(w, http.StatusConflict, "User already exists")
		default:
			log.Printf("[auth] registration failed: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, toUserResponse(created))
}

// handleLogin 校验凭证并返回用户信息
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	found, err := h.authSvc.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, authService.ErrMissingFields):
			utils.RespondError(w, http.StatusBadRequest, "Missing fields")
		case errors.Is(err, authService.ErrInvalidCredentials):
			utils.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		default:
			log.Printf("[auth] login failed: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, toUserResponse(found))
}
