package feedserver

import (
	"encoding/json"
	"log"
	"net/http"

	"diarylink/internal/auth"
	"diarylink/internal/config"
	"diarylink/internal/services"
	"diarylink/internal/websocket"
)

// PendingFeedHandler upgrades authenticated clients onto the live pending
// feed. Browsers cannot set an Authorization header on a websocket upgrade,
// so the token rides in the query string.
type PendingFeedHandler struct {
	hub                 *websocket.Hub
	relationshipService services.RelationshipService
	authCfg             config.AuthConfig
	wsCfg               config.WebSocketConfig
}

// NewPendingFeedHandler creates a new PendingFeedHandler.
func NewPendingFeedHandler(hub *websocket.Hub, rs services.RelationshipService, authCfg config.AuthConfig, wsCfg config.WebSocketConfig) *PendingFeedHandler {
	return &PendingFeedHandler{
		hub:                 hub,
		relationshipService: rs,
		authCfg:             authCfg,
		wsCfg:               wsCfg,
	}
}

// ServeHTTP handles GET /ws?token=
func (h *PendingFeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		http.Error(w, "缺少 token 参数", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(tokenString, h.authCfg.JWTSecretKey)
	if err != nil {
		http.Error(w, "令牌无效", http.StatusUnauthorized)
		return
	}

	// Build the initial snapshot before upgrading so a brand-new connection
	// renders current state immediately. A failed build still admits the
	// client; the next committed transition pushes a fresh snapshot anyway.
	var initial []byte
	snapshot, err := h.relationshipService.PendingSnapshot(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("初始快照构建失败 (UserID %s): %v", claims.UserID, err)
	} else if payload, merr := json.Marshal(snapshot); merr == nil {
		initial = payload
	}

	websocket.ServeWS(h.hub, claims.UserID, initial, w, r, h.wsCfg)
}
