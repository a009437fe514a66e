package domain

import "time"

// ChatMessage is one inbound or outbound message on a conversation.
type ChatMessage struct {
	ID             int64     `json:"id,string" form:"id"`
	AccountId      int64     `gorm:"index" json:"account_id,string"`
	ConversationId int64     `gorm:"index" json:"conversation_id,string"`
	Platform       string    `json:"platform"`
	PlatformMsgId  string    `gorm:"index" json:"platform_msg_id"` // id assigned by the platform, if any
	Sender         string    `json:"sender"`
	Recipient      string    `json:"recipient"`
	Body           string    `json:"body"`
	IsFromMe       bool      `json:"is_from_me"`
	Status         string    `json:"status"` // received / sent / failed
	Timestamp      time.Time `json:"timestamp"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName Specify table name
func (ChatMessage) TableName() string {
	return "chat_message"
}

// ChatConversation is a message thread between an account and one participant.
type ChatConversation struct {
	ID            int64     `json:"id,string" form:"id"`
	AccountId     int64     `gorm:"index" json:"account_id,string"`
	ParticipantId string    `gorm:"index" json:"participant_id"` // normalized platform address
	Title         string    `json:"title"`
	LastPreview   string    `json:"last_preview"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName Specify table name
func (ChatConversation) TableName() string {
	return "chat_conversation"
}

// ChatContact is an address-book entry discovered for an account.
type ChatContact struct {
	ID            int64     `json:"id,string" form:"id"`
	AccountId     int64     `gorm:"index" json:"account_id,string"`
	ParticipantId string    `gorm:"index" json:"participant_id"`
	Name          string    `json:"name" form:"name"`
	Phone         string    `json:"phone" form:"phone"`
	Remark        string    `json:"remark" form:"remark"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName Specify table name
func (ChatContact) TableName() string {
	return "chat_contact"
}
