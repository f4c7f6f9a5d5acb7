package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/streamchat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/streamchat/backend/internal/service/chat"
	"github.com/zhouzirui/streamchat/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleSendMessage)
	r.Get("/chat/{id}", h.handleGetConversation)
}

type historyItem struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// handleSendMessage streams the model reply as plain text chunks. The
// resolved conversation id travels in the X-Chat-Id header, set before the
// first byte of the body.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string        `json:"message"`
		History []historyItem `json:"history"`
		UserID  string        `json:"userId"`
		ChatID  string        `json:"chatId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !h.chatSvc.GenerationEnabled() {
		http.Error(w, "AI generation unavailable", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	exchange, err := h.chatSvc.Prepare(ctx, chatService.SendRequest{
		UserID:         payload.UserID,
		ConversationID: payload.ChatID,
		Message:        payload.Message,
		History:        normalizeHistory(payload.History),
	})
	if err != nil {
		var quotaErr *chatService.QuotaExceededError
		switch {
		case errors.Is(err, chatService.ErrMessageRequired):
			http.Error(w, "Message is required", http.StatusBadRequest)
		case errors.Is(err, chatService.ErrUserRequired):
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		case errors.As(err, &quotaErr):
			http.Error(w, fmt.Sprintf(
				"Message limit reached. You have used %d/%d messages. Please contact support or upgrade to continue.",
				quotaErr.Used, quotaErr.Limit), http.StatusForbidden)
		default:
			log.Printf("[chat] failed to prepare send: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Chat-Id", exchange.ConversationID)
	w.WriteHeader(http.StatusOK)

	_, err = h.chatSvc.Stream(ctx, exchange, func(fragment string) error {
		if _, writeErr := w.Write([]byte(fragment)); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are gone; all we can do is cut the body short and log.
		log.Printf("[chat] stream ended with error for conversation=%s: %v", exchange.ConversationID, err)
	}
}

// handleGetConversation 返回会话的完整消息列表
func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("userId")

	if userID == "" {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conv, err := h.chatSvc.GetConversation(r.Context(), conversationID, userID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "Chat not found")
			return
		}
		log.Printf("[chat] failed to load conversation=%s: %v", conversationID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": conv.Messages})
}

func normalizeHistory(items []historyItem) []chat.Message {
	if len(items) == 0 {
		return nil
	}

	history := make([]chat.Message, 0, len(items))
	for _, item := range items {
		role := chat.RoleModel
		if strings.EqualFold(item.Role, string(chat.RoleUser)) {
			role = chat.RoleUser
		}
		history = append(history, chat.Message{Role: role, Text: item.Text})
	}
	return history
}
