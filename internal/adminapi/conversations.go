package adminapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/waplex/waplex/internal/domain"
	"github.com/waplex/waplex/internal/webserver"
	"gorm.io/gorm"
)

func registerConversationRoutes() {
	webserver.ApiGET("/accounts/:id/conversations", listConversations)
	webserver.ApiGET("/conversations/:id/messages", listConversationMessages)
	webserver.ApiPOST("/conversations/:id/read", postConversationRead)
	webserver.ApiGET("/accounts/:id/messages", listAccountMessages)
}

func listConversations(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}
	page, pageSize := parsePagination(c)

	base := GetDB(c).Model(&domain.ChatConversation{}).Where("account_id = ?", id)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query conversations", err.Error())
	}

	var convs []domain.ChatConversation
	if err := base.Order("last_message_at DESC").Offset((page-1)*pageSize).Limit(pageSize).Find(&convs).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query conversations", err.Error())
	}
	return paged(c, convs, total, page, pageSize)
}

func listConversationMessages(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID", nil)
	}
	page, pageSize := parsePagination(c)

	base := GetDB(c).Model(&domain.ChatMessage{}).Where("conversation_id = ?", id)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query messages", err.Error())
	}

	var msgs []domain.ChatMessage
	if err := base.Order("timestamp DESC").Offset((page-1)*pageSize).Limit(pageSize).Find(&msgs).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query messages", err.Error())
	}
	return paged(c, msgs, total, page, pageSize)
}

// postConversationRead clears the unread counter for a conversation.
func postConversationRead(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID", nil)
	}
	var conv domain.ChatConversation
	if err := GetDB(c).Where("id = ?", id).First(&conv).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query conversation", err.Error())
	}
	if err := GetDB(c).Model(&conv).Update("unread_count", 0).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update conversation", err.Error())
	}
	return ok(c, map[string]interface{}{"read": true})
}

func listAccountMessages(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}
	page, pageSize := parsePagination(c)

	base := GetDB(c).Model(&domain.ChatMessage{}).Where("account_id = ?", id)
	if keyword := c.QueryParam("keyword"); keyword != "" {
		base = base.Where("body LIKE ?", "%"+keyword+"%")
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query messages", err.Error())
	}

	var msgs []domain.ChatMessage
	if err := base.Order("timestamp DESC").Offset((page-1)*pageSize).Limit(pageSize).Find(&msgs).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query messages", err.Error())
	}
	return paged(c, msgs, total, page, pageSize)
}
