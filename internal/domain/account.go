package domain

import "time"

// Chat module related models

// ChatAccount is a tenant messaging account bound to one platform identity.
// Status mirrors the in-memory session connection state so the dashboard can
// poll it between real-time events.
type ChatAccount struct {
	ID              int64     `json:"id,string" form:"id"`
	Platform        string    `gorm:"index" json:"platform" form:"platform"` // whatsapp / instagram
	Name            string    `json:"name" form:"name"`
	Identity        string    `json:"identity" form:"identity"` // phone number or platform username
	Jid             string    `json:"jid"`                      // populated after pairing completes
	Status          string    `gorm:"index" json:"status"`      // connection state, e.g. ready, disconnected
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	Enabled         bool      `json:"enabled" form:"enabled"`
	Remark          string    `json:"remark" form:"remark"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName Specify table name
func (ChatAccount) TableName() string {
	return "chat_account"
}
