package adminapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/waplex/waplex/internal/domain"
	"github.com/waplex/waplex/internal/webserver"
	"github.com/waplex/waplex/pkg/common"
	"gorm.io/gorm"
)

func registerWebhookRoutes() {
	webserver.ApiGET("/webhooks", listWebhooks)
	webserver.ApiPOST("/webhooks", createWebhook)
	webserver.ApiPUT("/webhooks/:id", updateWebhook)
	webserver.ApiDELETE("/webhooks/:id", deleteWebhook)
}

func listWebhooks(c echo.Context) error {
	page, pageSize := parsePagination(c)

	base := GetDB(c).Model(&domain.ChatWebhook{})
	if aid := c.QueryParam("account_id"); aid != "" {
		base = base.Where("account_id = ?", aid)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query webhooks", err.Error())
	}

	var hooks []domain.ChatWebhook
	if err := base.Order("id DESC").Offset((page-1)*pageSize).Limit(pageSize).Find(&hooks).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query webhooks", err.Error())
	}
	return paged(c, hooks, total, page, pageSize)
}

type webhookPayload struct {
	AccountId int64  `json:"account_id,string"`
	Url       string `json:"url"`
	Events    string `json:"events"`
	Secret    string `json:"secret"`
	Enabled   *bool  `json:"enabled"`
	Remark    string `json:"remark"`
}

func createWebhook(c echo.Context) error {
	var payload webhookPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse webhook parameters", nil)
	}
	payload.Url = strings.TrimSpace(payload.Url)
	if payload.Url == "" {
		return fail(c, http.StatusBadRequest, "MISSING_URL", "Webhook url is required", nil)
	}
	if !strings.HasPrefix(payload.Url, "http://") && !strings.HasPrefix(payload.Url, "https://") {
		return fail(c, http.StatusBadRequest, "INVALID_URL", "Webhook url must be http or https", nil)
	}

	enabled := true
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}
	hook := domain.ChatWebhook{
		ID:        common.UUIDint64(),
		AccountId: payload.AccountId,
		Url:       payload.Url,
		Events:    payload.Events,
		Secret:    payload.Secret,
		Enabled:   enabled,
		Remark:    payload.Remark,
	}
	if err := GetDB(c).Create(&hook).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create webhook", err.Error())
	}
	return ok(c, hook)
}

func updateWebhook(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid webhook ID", nil)
	}
	var payload webhookPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse webhook parameters", nil)
	}

	var hook domain.ChatWebhook
	if err := GetDB(c).Where("id = ?", id).First(&hook).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "WEBHOOK_NOT_FOUND", "Webhook not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query webhook", err.Error())
	}

	updates := map[string]interface{}{}
	if payload.Url != "" {
		updates["url"] = payload.Url
	}
	if payload.Events != "" {
		updates["events"] = payload.Events
	}
	if payload.Secret != "" {
		updates["secret"] = payload.Secret
	}
	if payload.Remark != "" {
		updates["remark"] = payload.Remark
	}
	if payload.Enabled != nil {
		updates["enabled"] = *payload.Enabled
	}
	if len(updates) > 0 {
		if err := GetDB(c).Model(&hook).Updates(updates).Error; err != nil {
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update webhook", err.Error())
		}
	}
	GetDB(c).Where("id = ?", id).First(&hook)
	return ok(c, hook)
}

func deleteWebhook(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid webhook ID", nil)
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.ChatWebhook{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete webhook", err.Error())
	}
	return ok(c, map[string]interface{}{"removed": true})
}
