package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"diarylink/internal/middleware"
	"diarylink/internal/models"
	"diarylink/internal/services"

	"github.com/gorilla/mux"
)

// RelationshipHandler handles HTTP requests for friend requests and
// friendships. Every route runs behind the auth middleware; the acting user
// always comes from the request context, never from the payload.
type RelationshipHandler struct {
	relationshipService services.RelationshipService
}

// NewRelationshipHandler creates a new RelationshipHandler.
func NewRelationshipHandler(rs services.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{relationshipService: rs}
}

// SendRequestPayload defines the expected JSON body for sending a friend request.
type SendRequestPayload struct {
	ToUserID string `json:"toUserId"`
}

// writeRelationshipError maps the service sentinels onto HTTP statuses.
// Anything unmatched is an internal failure and gets logged.
func writeRelationshipError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSelfRequest),
		errors.Is(err, services.ErrInvalidUserID),
		errors.Is(err, services.ErrRecipientNotFound):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNotAuthorized):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrRequestNotFound),
		errors.Is(err, services.ErrFriendshipNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrAlreadyFriends),
		errors.Is(err, services.ErrRequestExists),
		errors.Is(err, services.ErrAlreadyResolved):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrStoreUnavailable):
		log.Printf("关系存储不可用: %v", err)
		writeJSONError(w, "服务暂时不可用", http.StatusServiceUnavailable)
	default:
		log.Printf("处理好友关系操作失败: %v", err)
		writeJSONError(w, "内部服务器错误", http.StatusInternalServerError)
	}
}

// SendRequestHandler handles POST /api/v1/friend-requests
func (h *RelationshipHandler) SendRequestHandler(w http.ResponseWriter, r *http.Request) {
	fromUserID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var payload SendRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.ToUserID == "" {
		writeJSONError(w, "缺少接收者ID (toUserId)", http.StatusBadRequest)
		return
	}

	request, err := h.relationshipService.SendRequest(r.Context(), fromUserID, payload.ToUserID)
	if err != nil {
		writeRelationshipError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]string{
		"requestId": request.ID,
		"status":    string(request.Status),
	})
}

// resolveRequestID pulls the request id path variable.
func resolveRequestID(w http.ResponseWriter, r *http.Request) (string, bool) {
	requestID, ok := mux.Vars(r)["requestID"]
	if !ok || requestID == "" {
		writeJSONError(w, "缺少好友请求ID", http.StatusBadRequest)
		return "", false
	}
	return requestID, true
}

// AcceptRequestHandler handles POST /api/v1/friend-requests/{requestID}/accept
func (h *RelationshipHandler) AcceptRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	requestID, ok := resolveRequestID(w, r)
	if !ok {
		return
	}

	if err := h.relationshipService.AcceptRequest(r.Context(), requestID, userID); err != nil {
		writeRelationshipError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "好友请求已接受"})
}

// RejectRequestHandler handles POST /api/v1/friend-requests/{requestID}/reject
func (h *RelationshipHandler) RejectRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	requestID, ok := resolveRequestID(w, r)
	if !ok {
		return
	}

	if err := h.relationshipService.RejectRequest(r.Context(), requestID, userID); err != nil {
		writeRelationshipError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "好友请求已拒绝"})
}

// CancelRequestHandler handles POST /api/v1/friend-requests/{requestID}/cancel
func (h *RelationshipHandler) CancelRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	requestID, ok := resolveRequestID(w, r)
	if !ok {
		return
	}

	if err := h.relationshipService.CancelRequest(r.Context(), requestID, userID); err != nil {
		writeRelationshipError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "好友请求已撤回"})
}

// ListPendingReceivedHandler handles GET /api/v1/friend-requests/pending
func (h *RelationshipHandler) ListPendingReceivedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	received, err := h.relationshipService.ListPendingReceived(r.Context(), userID)
	if err != nil {
		writeRelationshipError(w, err)
		return
	}
	if received == nil {
		received = []models.ReceivedRequest{}
	}
	writeJSONResponse(w, http.StatusOK, received)
}

// ListPendingSentHandler handles GET /api/v1/friend-requests/sent
func (h *RelationshipHandler) ListPendingSentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	sent, err := h.relationshipService.ListPendingSent(r.Context(), userID)
	if err != nil {
		writeRelationshipError(w, err)
		return
	}
	if sent == nil {
		sent = []models.SentRequest{}
	}
	writeJSONResponse(w, http.StatusOK, sent)
}

// ListFriendsHandler handles GET /api/v1/friends
func (h *RelationshipHandler) ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	friends, err := h.relationshipService.ListFriends(r.Context(), userID)
	if err != nil {
		writeRelationshipError(w, err)
		return
	}
	if friends == nil {
		friends = []models.FriendEntry{}
	}
	writeJSONResponse(w, http.StatusOK, friends)
}

// RemoveFriendHandler handles DELETE /api/v1/friends/{pairID}
func (h *RelationshipHandler) RemoveFriendHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	pairID, ok := mux.Vars(r)["pairID"]
	if !ok || pairID == "" {
		writeJSONError(w, "缺少好友关系ID", http.StatusBadRequest)
		return
	}

	if err := h.relationshipService.RemoveFriendship(r.Context(), pairID, userID); err != nil {
		writeRelationshipError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "好友关系已解除"})
}
