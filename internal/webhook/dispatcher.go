// Package webhook delivers session events to registered external endpoints.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/guonaihong/gout"
	"github.com/waplex/waplex/internal/domain"
	"github.com/waplex/waplex/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const deliverTimeout = 10 * time.Second

// Dispatcher posts each session event to every matching ChatWebhook.
// Delivery is best-effort: failures are recorded on the webhook row and
// logged, never retried synchronously.
type Dispatcher struct {
	db *gorm.DB
}

func NewDispatcher(db *gorm.DB) *Dispatcher {
	return &Dispatcher{db: db}
}

// SubscribeBus attaches the dispatcher to the session event topic.
func (d *Dispatcher) SubscribeBus(bus EventBus.Bus) error {
	return bus.SubscribeAsync(session.BusTopic, d.onEvent, false)
}

func (d *Dispatcher) onEvent(evt session.Event) {
	var hooks []domain.ChatWebhook
	err := d.db.Where("enabled = ? and (account_id = 0 or account_id = ?)", true, evt.AccountId).
		Find(&hooks).Error
	if err != nil {
		zap.L().Warn("webhook: query failed", zap.Error(err))
		return
	}
	for i := range hooks {
		hook := hooks[i]
		if !matches(hook.Events, evt.Name) {
			continue
		}
		d.deliver(&hook, evt)
	}
}

// matches reports whether the event name is covered by the webhook's
// comma-separated event filter. An empty filter subscribes to everything.
func matches(filter, name string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	for _, f := range strings.Split(filter, ",") {
		if strings.TrimSpace(f) == name {
			return true
		}
	}
	return false
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) deliver(hook *domain.ChatWebhook, evt session.Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		zap.L().Warn("webhook: payload marshal failed", zap.Error(err))
		return
	}

	headers := []interface{}{"Content-Type", "application/json"}
	if hook.Secret != "" {
		headers = append(headers, "X-Waplex-Signature", sign(hook.Secret, body))
	}

	var status int
	err = gout.POST(hook.Url).
		SetHeader(headers...).
		SetBody(body).
		SetTimeout(deliverTimeout).
		Code(&status).
		Do()

	result := "ok"
	if err != nil {
		result = err.Error()
	} else if status >= 300 {
		result = "http_" + strconv.Itoa(status)
	}
	if result != "ok" {
		zap.L().Warn("webhook: delivery failed",
			zap.Int64("webhook_id", hook.ID),
			zap.String("url", hook.Url),
			zap.String("event", evt.Name),
			zap.String("result", result))
	}

	if err := d.db.Model(&domain.ChatWebhook{}).Where("id = ?", hook.ID).
		Updates(map[string]interface{}{
			"last_status":       result,
			"last_delivered_at": time.Now(),
		}).Error; err != nil {
		zap.L().Debug("webhook: status update failed", zap.Int64("webhook_id", hook.ID), zap.Error(err))
	}
}
