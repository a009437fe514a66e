package app

import (
	"context"
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"github.com/waplex/waplex/config"
	"github.com/waplex/waplex/internal/broadcast"
	"github.com/waplex/waplex/internal/domain"
	"github.com/waplex/waplex/internal/platform/whatsapp"
	"github.com/waplex/waplex/internal/session"
	"github.com/waplex/waplex/internal/webhook"
	"github.com/waplex/waplex/pkg/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron
	bus       EventBus.Bus
	manager   *session.Manager
	hub       *broadcast.Hub
	webhooks  *webhook.Dispatcher
}

// Ensure Application implements all interfaces
var (
	_ DBProvider        = (*Application)(nil)
	_ ConfigProvider    = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ SessionProvider   = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	// Initialize zap logger
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)

	// Initialize metrics with workdir convention
	err = metrics.InitMetrics(cfg.System.Workdir)
	if err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	// Initialize database connection
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB = getDatabase(cfg.Database)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	a.checkSuper()

	a.bus = EventBus.New()
	a.initSessionManager()

	a.hub = broadcast.NewHub()
	if err := a.hub.SubscribeBus(a.bus); err != nil {
		zap.S().Errorf("realtime hub subscribe failed: %v", err)
	}
	a.webhooks = webhook.NewDispatcher(a.gormDB)
	if err := a.webhooks.SubscribeBus(a.bus); err != nil {
		zap.S().Errorf("webhook dispatcher subscribe failed: %v", err)
	}

	a.initJob()
}

// initSessionManager builds the whatsmeow-backed provider set and the
// lifecycle manager on top of the shared database handle.
func (a *Application) initSessionManager() {
	sqlDB, err := a.gormDB.DB()
	if err != nil {
		zap.S().Fatalf("database handle unavailable: %v", err)
	}
	waProvider, err := whatsapp.NewProvider(context.Background(), sqlDB, a.appConfig.Database.Type)
	if err != nil {
		zap.S().Fatalf("whatsapp provider init failed: %v", err)
	}

	scfg := a.appConfig.Session
	waProfile := session.WhatsAppProfile()
	waProfile.MaxAttempts = scfg.WhatsappMaxAttempts
	waProfile.HealthInterval = time.Duration(scfg.HealthIntervalSecs) * time.Second
	waProfile.PairingWindow = time.Duration(scfg.PairingWindowSecs) * time.Second
	waProfile.BulkDelay = time.Duration(scfg.BulkDelayMillis) * time.Millisecond

	igProfile := session.InstagramProfile()
	igProfile.MaxAttempts = scfg.InstagramMaxAttempts
	igProfile.HealthInterval = time.Duration(scfg.HealthIntervalSecs) * time.Second
	igProfile.PairingWindow = time.Duration(scfg.PairingWindowSecs) * time.Second
	igProfile.BulkDelay = time.Duration(scfg.BulkDelayMillis) * time.Millisecond

	mgr, err := session.NewManager(session.ManagerConfig{
		Providers: map[string]session.Provider{
			session.PlatformWhatsApp: waProvider,
		},
		Profiles: map[string]session.Profile{
			session.PlatformWhatsApp:  waProfile,
			session.PlatformInstagram: igProfile,
		},
		Persistence: session.NewGormPersistence(a.gormDB),
		Emitter:     session.NewBusEmitter(a.bus),
	})
	if err != nil {
		zap.S().Fatalf("session manager init failed: %v", err)
	}
	a.manager = mgr
}

// AutoStartSessions initializes a session for every enabled account. Called
// once at boot when session.auto_start is set.
func (a *Application) AutoStartSessions() {
	var accounts []domain.ChatAccount
	if err := a.gormDB.Where("enabled = ?", true).Find(&accounts).Error; err != nil {
		zap.L().Error("auto-start account query failed", zap.Error(err))
		return
	}
	for _, acc := range accounts {
		if err := a.manager.CreateSession(acc.ID, acc.Platform, acc.Identity); err != nil {
			zap.L().Warn("auto-start session failed",
				zap.Int64("account_id", acc.ID),
				zap.String("platform", acc.Platform),
				zap.Error(err))
		}
	}
	zap.L().Info("auto-start complete", zap.Int("accounts", len(accounts)))
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	if track {
		if err := a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	} else {
		if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	}
	return nil
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// SessionManager returns the connection lifecycle manager
func (a *Application) SessionManager() *session.Manager {
	return a.manager
}

// Bus returns the process-wide event bus
func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

// Hub returns the realtime websocket hub
func (a *Application) Hub() *broadcast.Hub {
	return a.hub
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.manager != nil {
		a.manager.Shutdown()
	}

	_ = metrics.Close()
	_ = zap.L().Sync()
}
