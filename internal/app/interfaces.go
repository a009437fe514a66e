package app

import (
	"github.com/robfig/cron/v3"
	"github.com/waplex/waplex/config"
	"github.com/waplex/waplex/internal/session"
	"gorm.io/gorm"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// SessionProvider provides the connection lifecycle manager
type SessionProvider interface {
	SessionManager() *session.Manager
}

// AppContext combines all provider interfaces for full application context.
// Services should depend on specific providers or this combined interface.
type AppContext interface {
	DBProvider
	ConfigProvider
	SchedulerProvider
	SessionProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
}
