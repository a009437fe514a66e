// Package adminapi implements the management REST surface: operator auth,
// account CRUD, session lifecycle operations, messaging and webhooks.
package adminapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/waplex/waplex/config"
	"github.com/waplex/waplex/internal/broadcast"
	"github.com/waplex/waplex/internal/session"
	"github.com/waplex/waplex/internal/webserver"
	"gorm.io/gorm"
)

var (
	appConfig *config.AppConfig
	manager   *session.Manager
	hub       *broadcast.Hub
)

// Init wires the controllers to their collaborators and registers every
// route group on the webserver.
func Init(cfg *config.AppConfig, mgr *session.Manager, bhub *broadcast.Hub) {
	appConfig = cfg
	manager = mgr
	hub = bhub

	registerAuthRoutes()
	registerAccountRoutes()
	registerMessagingRoutes()
	registerConversationRoutes()
	registerContactRoutes()
	registerWebhookRoutes()
	registerStatusRoutes()
}

// GetDB returns the request-scoped database handle.
func GetDB(c echo.Context) *gorm.DB {
	return webserver.GetDB(c)
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": 0,
		"data": data,
	})
}

func fail(c echo.Context, status int, code, msg string, detail interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"code":   1,
		"error":  code,
		"msg":    msg,
		"detail": detail,
	})
}

func paged(c echo.Context, data interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":      0,
		"data":      data,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 20
	}
	return page, pageSize
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}
