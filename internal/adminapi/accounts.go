package adminapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/waplex/waplex/internal/domain"
	"github.com/waplex/waplex/internal/session"
	"github.com/waplex/waplex/internal/webserver"
	"github.com/waplex/waplex/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func registerAccountRoutes() {
	webserver.ApiGET("/accounts", listAccounts)
	webserver.ApiGET("/accounts/:id", getAccount)
	webserver.ApiPOST("/accounts", createAccount)
	webserver.ApiPUT("/accounts/:id", updateAccount)
	webserver.ApiDELETE("/accounts/:id", deleteAccount)

	webserver.ApiGET("/accounts/:id/session", getAccountSession)
	webserver.ApiPOST("/accounts/:id/session", postAccountSession)
	webserver.ApiDELETE("/accounts/:id/session", deleteAccountSession)
	webserver.ApiGET("/accounts/:id/qr", getAccountQR)
	webserver.ApiPOST("/accounts/:id/reconnect", postAccountReconnect)
}

func listAccounts(c echo.Context) error {
	page, pageSize := parsePagination(c)

	base := GetDB(c).Model(&domain.ChatAccount{})
	if platform := c.QueryParam("platform"); platform != "" {
		base = base.Where("platform = ?", platform)
	}
	if keyword := c.QueryParam("keyword"); keyword != "" {
		kw := "%" + keyword + "%"
		base = base.Where("name LIKE ? OR identity LIKE ?", kw, kw)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query accounts", err.Error())
	}

	var accounts []domain.ChatAccount
	if err := base.Order("id DESC").Offset((page-1)*pageSize).Limit(pageSize).Find(&accounts).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query accounts", err.Error())
	}
	return paged(c, accounts, total, page, pageSize)
}

func getAccount(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}
	var acc domain.ChatAccount
	if err := GetDB(c).Where("id = ?", id).First(&acc).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query account", err.Error())
	}
	return ok(c, acc)
}

type accountPayload struct {
	Platform string `json:"platform"`
	Name     string `json:"name"`
	Identity string `json:"identity"`
	Enabled  *bool  `json:"enabled"`
	Remark   string `json:"remark"`
}

func createAccount(c echo.Context) error {
	var payload accountPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse account parameters", nil)
	}
	payload.Platform = strings.ToLower(strings.TrimSpace(payload.Platform))
	if payload.Platform != session.PlatformWhatsApp && payload.Platform != session.PlatformInstagram {
		return fail(c, http.StatusBadRequest, "INVALID_PLATFORM", "Platform must be whatsapp or instagram", nil)
	}
	if payload.Name == "" || payload.Identity == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "name and identity are required", nil)
	}

	var dup domain.ChatAccount
	if err := GetDB(c).Where("platform = ? AND identity = ?", payload.Platform, payload.Identity).First(&dup).Error; err == nil {
		return fail(c, http.StatusConflict, "DUPLICATE_ACCOUNT", "Account with this identity already exists", nil)
	}

	enabled := true
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}
	acc := domain.ChatAccount{
		ID:       common.UUIDint64(),
		Platform: payload.Platform,
		Name:     payload.Name,
		Identity: payload.Identity,
		Status:   string(session.StateInitializing),
		Enabled:  enabled,
		Remark:   payload.Remark,
	}
	if err := GetDB(c).Create(&acc).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create account", err.Error())
	}
	zap.L().Info("account created",
		zap.Int64("account_id", acc.ID),
		zap.String("platform", acc.Platform))
	return ok(c, acc)
}

func updateAccount(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}
	var payload accountPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse account parameters", nil)
	}

	var acc domain.ChatAccount
	if err := GetDB(c).Where("id = ?", id).First(&acc).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query account", err.Error())
	}

	updates := map[string]interface{}{}
	if payload.Name != "" {
		updates["name"] = payload.Name
	}
	if payload.Remark != "" {
		updates["remark"] = payload.Remark
	}
	if payload.Enabled != nil {
		updates["enabled"] = *payload.Enabled
	}
	if len(updates) > 0 {
		if err := GetDB(c).Model(&acc).Updates(updates).Error; err != nil {
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update account", err.Error())
		}
	}

	// disabling an account tears its live session down
	if payload.Enabled != nil && !*payload.Enabled {
		manager.DestroySession(id)
	}

	GetDB(c).Where("id = ?", id).First(&acc)
	return ok(c, acc)
}

// deleteAccount removes the account record along with its session, messages
// and conversations.
func deleteAccount(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}

	manager.RemoveAccountSession(id)

	db := GetDB(c)
	db.Where("account_id = ?", id).Delete(&domain.ChatMessage{})
	db.Where("account_id = ?", id).Delete(&domain.ChatConversation{})
	db.Where("account_id = ?", id).Delete(&domain.ChatContact{})
	db.Where("account_id = ?", id).Delete(&domain.ChatWebhook{})
	if err := db.Where("id = ?", id).Delete(&domain.ChatAccount{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete account", err.Error())
	}
	zap.L().Info("account removed", zap.Int64("account_id", id))
	return ok(c, map[string]interface{}{"removed": true})
}

// getAccountSession returns the live session snapshot for an account.
func getAccountSession(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}
	info, found := manager.GetSession(id)
	if !found {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "No active session for this account", nil)
	}
	return ok(c, info)
}

// postAccountSession initializes (or reinitializes) the session, starting
// the pairing flow when no stored credentials exist.
func postAccountSession(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}
	var acc domain.ChatAccount
	if err := GetDB(c).Where("id = ?", id).First(&acc).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query account", err.Error())
	}
	if !acc.Enabled {
		return fail(c, http.StatusBadRequest, "ACCOUNT_DISABLED", "Account is disabled", nil)
	}

	if err := manager.CreateSession(acc.ID, acc.Platform, acc.Identity); err != nil {
		return fail(c, http.StatusInternalServerError, "SESSION_FAILED", "Failed to initialize session", err.Error())
	}
	return ok(c, map[string]interface{}{"started": true})
}

func deleteAccountSession(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}
	manager.DestroySession(id)
	return ok(c, map[string]interface{}{"destroyed": true})
}

// getAccountQR returns the cached pairing artifact. Clients poll this while
// the session sits in pairing_required.
func getAccountQR(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}
	artifact := manager.CachedPairingArtifact(id)
	if artifact == nil {
		return ok(c, map[string]interface{}{"has_qr": false})
	}
	return ok(c, map[string]interface{}{
		"has_qr":     true,
		"code":       artifact.Raw,
		"image":      artifact.DataURL,
		"expires_at": artifact.ExpiresAt,
	})
}

// postAccountReconnect forces an immediate reconnect with the backoff
// counter reset.
func postAccountReconnect(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}
	if err := manager.ForceReconnect(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "No active session for this account", nil)
		}
		return fail(c, http.StatusInternalServerError, "RECONNECT_FAILED", "Failed to reconnect", err.Error())
	}
	return ok(c, map[string]interface{}{"started": true})
}
