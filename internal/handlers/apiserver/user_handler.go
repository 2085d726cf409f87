package apiserver

import (
	"errors"
	"log"
	"net/http"

	"diarylink/internal/middleware"
	"diarylink/internal/models"
	"diarylink/internal/services"
)

// UserHandler handles HTTP requests against the user directory.
type UserHandler struct {
	directoryService services.DirectoryService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(ds services.DirectoryService) *UserHandler {
	return &UserHandler{directoryService: ds}
}

// SearchUsersHandler handles GET /api/v1/users/search?q=
func (h *UserHandler) SearchUsersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query().Get("q")
	results, err := h.directoryService.SearchUsers(r.Context(), query, userID)
	if err != nil {
		if errors.Is(err, services.ErrQueryTooShort) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("搜索用户失败 (q=%q): %v", query, err)
		writeJSONError(w, "搜索用户失败", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []models.UserBasicInfo{}
	}
	writeJSONResponse(w, http.StatusOK, results)
}
