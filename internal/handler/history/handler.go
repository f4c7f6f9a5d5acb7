package history

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/streamchat/backend/internal/service/chat"
	"github.com/zhouzirui/streamchat/backend/pkg/utils"
)

// Handler 会话目录的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建目录处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册历史记录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/history", h.handleList)
	r.Delete("/history", h.handleDelete)
}

// handleList 返回用户的会话列表和已用消息数
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "User ID required")
		return
	}

	summaries, used, err := h.chatSvc.History(r.Context(), userID)
	if err != nil {
		log.Printf("[history] failed to list for user=%s: %v", userID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"chats":        summaries,
		"messageCount": used,
	})
}

// handleDelete removes one conversation. The response shape is identical
// whether or not anything was deleted.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("id")
	userID := r.URL.Query().Get("userId")

	if conversationID == "" || userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "ID and UserID required")
		return
	}

	if err := h.chatSvc.DeleteConversation(r.Context(), conversationID, userID); err != nil {
		log.Printf("[history] failed to delete conversation=%s: %v", conversationID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
