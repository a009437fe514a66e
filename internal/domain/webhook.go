package domain

import "time"

// ChatWebhook registers an external endpoint for event delivery.
// AccountId 0 subscribes the endpoint to every account.
type ChatWebhook struct {
	ID              int64     `json:"id,string" form:"id"`
	AccountId       int64     `gorm:"index" json:"account_id,string" form:"account_id"`
	Url             string    `json:"url" form:"url"`
	Events          string    `json:"events" form:"events"` // comma-separated event names, empty = all
	Secret          string    `json:"secret" form:"secret"`
	Enabled         bool      `json:"enabled" form:"enabled"`
	LastStatus      string    `json:"last_status"`
	LastDeliveredAt time.Time `json:"last_delivered_at"`
	Remark          string    `json:"remark" form:"remark"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName Specify table name
func (ChatWebhook) TableName() string {
	return "chat_webhook"
}
