package adminapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/waplex/waplex/internal/domain"
	"github.com/waplex/waplex/internal/webserver"
	"github.com/waplex/waplex/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func registerAuthRoutes() {
	webserver.PubPOST("/auth/login", postLogin)
}

// postLogin verifies operator credentials and issues a JWT token valid for
// 24 hours.
func postLogin(c echo.Context) error {
	var payload struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.Username == "" || payload.Password == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "username and password are required", nil)
	}

	var opr domain.SysOpr
	err := GetDB(c).Where("username = ?", payload.Username).First(&opr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query operator", err.Error())
	}
	if opr.Status == common.DISABLED {
		return fail(c, http.StatusForbidden, "OPERATOR_DISABLED", "Operator account is disabled", nil)
	}
	if opr.Password != common.Sha256HashWithSalt(payload.Password, common.GetSecretSalt()) {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}

	claims := jwt.MapClaims{
		"uid":   opr.ID,
		"usr":   opr.Username,
		"level": opr.Level,
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(appConfig.Web.JwtSecret))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to sign token", err.Error())
	}

	GetDB(c).Model(&opr).Update("last_login", time.Now())
	zap.L().Info("operator login", zap.String("username", opr.Username))
	return ok(c, map[string]interface{}{
		"token":    signed,
		"username": opr.Username,
		"level":    opr.Level,
	})
}
