package adminapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/waplex/waplex/internal/domain"
	"github.com/waplex/waplex/internal/webserver"
	"github.com/waplex/waplex/pkg/common"
	"gorm.io/gorm"
)

func registerContactRoutes() {
	webserver.ApiGET("/accounts/:id/contacts", listContacts)
	webserver.ApiPOST("/accounts/:id/contacts", createContact)
	webserver.ApiPUT("/contacts/:id", updateContact)
	webserver.ApiDELETE("/contacts/:id", deleteContact)
}

func listContacts(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}
	page, pageSize := parsePagination(c)

	base := GetDB(c).Model(&domain.ChatContact{}).Where("account_id = ?", id)
	if keyword := c.QueryParam("keyword"); keyword != "" {
		kw := "%" + keyword + "%"
		base = base.Where("name LIKE ? OR phone LIKE ?", kw, kw)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query contacts", err.Error())
	}

	var contacts []domain.ChatContact
	if err := base.Order("name ASC").Offset((page-1)*pageSize).Limit(pageSize).Find(&contacts).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query contacts", err.Error())
	}
	return paged(c, contacts, total, page, pageSize)
}

type contactPayload struct {
	ParticipantId string `json:"participant_id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Remark        string `json:"remark"`
}

func createContact(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}
	var payload contactPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse contact parameters", nil)
	}
	if payload.ParticipantId == "" || payload.Name == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "participant_id and name are required", nil)
	}

	var dup domain.ChatContact
	if err := GetDB(c).Where("account_id = ? AND participant_id = ?", id, payload.ParticipantId).First(&dup).Error; err == nil {
		return fail(c, http.StatusConflict, "DUPLICATE_CONTACT", "Contact with this participant already exists", nil)
	}

	contact := domain.ChatContact{
		ID:            common.UUIDint64(),
		AccountId:     id,
		ParticipantId: payload.ParticipantId,
		Name:          payload.Name,
		Phone:         payload.Phone,
		Remark:        payload.Remark,
	}
	if err := GetDB(c).Create(&contact).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create contact", err.Error())
	}
	return ok(c, contact)
}

func updateContact(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid contact ID", nil)
	}
	var payload contactPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse contact parameters", nil)
	}

	var contact domain.ChatContact
	if err := GetDB(c).Where("id = ?", id).First(&contact).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONTACT_NOT_FOUND", "Contact not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query contact", err.Error())
	}

	updates := map[string]interface{}{}
	if payload.Name != "" {
		updates["name"] = payload.Name
	}
	if payload.Phone != "" {
		updates["phone"] = payload.Phone
	}
	if payload.Remark != "" {
		updates["remark"] = payload.Remark
	}
	if len(updates) > 0 {
		if err := GetDB(c).Model(&contact).Updates(updates).Error; err != nil {
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update contact", err.Error())
		}
	}
	GetDB(c).Where("id = ?", id).First(&contact)
	return ok(c, contact)
}

func deleteContact(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid contact ID", nil)
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.ChatContact{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete contact", err.Error())
	}
	return ok(c, map[string]interface{}{"removed": true})
}
