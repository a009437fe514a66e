package session

import (
	"time"

	"github.com/pkg/errors"
	"github.com/waplex/waplex/internal/domain"
	"gorm.io/gorm"
)

// Persistence is the storage boundary the lifecycle manager writes through.
// Kept narrow so tests can drive the manager with an in-memory fake.
type Persistence interface {
	UpsertAccountStatus(accountID int64, status State, at time.Time) error
	SetAccountConnected(accountID int64, jid string, at time.Time) error
	TouchAccountActivity(accountID int64, at time.Time) error
	CreateMessage(msg *domain.ChatMessage) error
	FindMessageByPlatformId(platform, platformMsgID string) (*domain.ChatMessage, error)
	// FindOrCreateConversation upserts the thread for a participant; inbound
	// messages additionally bump the unread counter.
	FindOrCreateConversation(accountID int64, participantID, preview string, at time.Time, inbound bool) (*domain.ChatConversation, error)
}

// GormPersistence implements Persistence on the application database.
type GormPersistence struct {
	db *gorm.DB
}

func NewGormPersistence(db *gorm.DB) *GormPersistence {
	return &GormPersistence{db: db}
}

func (p *GormPersistence) UpsertAccountStatus(accountID int64, status State, at time.Time) error {
	return p.db.Model(&domain.ChatAccount{}).Where("id = ?", accountID).
		Updates(map[string]interface{}{"status": string(status), "updated_at": at}).Error
}

func (p *GormPersistence) SetAccountConnected(accountID int64, jid string, at time.Time) error {
	updates := map[string]interface{}{
		"status":            string(StateReady),
		"last_connected_at": at,
		"last_activity_at":  at,
	}
	if jid != "" {
		updates["jid"] = jid
	}
	return p.db.Model(&domain.ChatAccount{}).Where("id = ?", accountID).Updates(updates).Error
}

func (p *GormPersistence) TouchAccountActivity(accountID int64, at time.Time) error {
	return p.db.Model(&domain.ChatAccount{}).Where("id = ?", accountID).
		Update("last_activity_at", at).Error
}

func (p *GormPersistence) CreateMessage(msg *domain.ChatMessage) error {
	return p.db.Create(msg).Error
}

func (p *GormPersistence) FindMessageByPlatformId(platform, platformMsgID string) (*domain.ChatMessage, error) {
	var msg domain.ChatMessage
	err := p.db.Where("platform = ? and platform_msg_id = ?", platform, platformMsgID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (p *GormPersistence) FindOrCreateConversation(accountID int64, participantID, preview string, at time.Time, inbound bool) (*domain.ChatConversation, error) {
	var conv domain.ChatConversation
	err := p.db.Where("account_id = ? and participant_id = ?", accountID, participantID).
		First(&conv).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		conv = domain.ChatConversation{
			AccountId:     accountID,
			ParticipantId: participantID,
			Title:         participantID,
			LastPreview:   preview,
			LastMessageAt: at,
		}
		if inbound {
			conv.UnreadCount = 1
		}
		if err := p.db.Create(&conv).Error; err != nil {
			return nil, err
		}
		return &conv, nil
	case err != nil:
		return nil, err
	}

	updates := map[string]interface{}{"last_preview": preview, "last_message_at": at}
	if inbound {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
	}
	if err := p.db.Model(&domain.ChatConversation{}).Where("id = ?", conv.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	conv.LastPreview = preview
	conv.LastMessageAt = at
	if inbound {
		conv.UnreadCount++
	}
	return &conv, nil
}
