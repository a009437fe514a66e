package config

import (
	"os"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	JwtSecret string `yaml:"jwt_secret" json:"jwt_secret"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

// SessionConfig carries the tunables of the connection lifecycle manager.
// Platform-specific ceilings live here so operators can adjust them without
// a rebuild.
type SessionConfig struct {
	WhatsappMaxAttempts  int `yaml:"whatsapp_max_attempts" json:"whatsapp_max_attempts"`
	InstagramMaxAttempts int `yaml:"instagram_max_attempts" json:"instagram_max_attempts"`
	HealthIntervalSecs   int `yaml:"health_interval_secs" json:"health_interval_secs"`
	PairingWindowSecs    int `yaml:"pairing_window_secs" json:"pairing_window_secs"`
	BulkDelayMillis      int `yaml:"bulk_delay_millis" json:"bulk_delay_millis"`
	MessageRetentionDays int `yaml:"message_retention_days" json:"message_retention_days"`
	AutoStart            bool `yaml:"auto_start" json:"auto_start"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system" json:"system"`
	Web      WebConfig     `yaml:"web" json:"web"`
	Database DBConfig      `yaml:"database" json:"database"`
	Logger   LogConfig     `yaml:"logger" json:"logger"`
	Session  SessionConfig `yaml:"session" json:"session"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "waplex",
		Location: "Asia/Jakarta",
		Workdir:  "/var/waplex",
		Debug:    true,
	},
	Web: WebConfig{
		Host:      "0.0.0.0",
		Port:      1980,
		JwtSecret: "9b6de5cc-waplex-0e3f-1987",
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "waplex",
		User:     "postgres",
		Passwd:   "",
		MaxConn:  100,
		IdleConn: 10,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/waplex/waplex.log",
	},
	Session: SessionConfig{
		WhatsappMaxAttempts:  15,
		InstagramMaxAttempts: 10,
		HealthIntervalSecs:   60,
		PairingWindowSecs:    60,
		BulkDelayMillis:      1000,
		MessageRetentionDays: 90,
		AutoStart:            true,
	},
}

func setEnvValue(name string, val *string) {
	evalue := os.Getenv(name)
	if evalue != "" {
		*val = evalue
	}
}

func setEnvBoolValue(name string, val *bool) {
	evalue := os.Getenv(name)
	if evalue != "" {
		*val = evalue == "true" || evalue == "1" || evalue == "on"
	}
}

func setEnvIntValue(name string, val *int) {
	evalue := os.Getenv(name)
	if evalue != "" {
		*val = cast.ToInt(evalue)
	}
}

// LoadConfig reads the yaml config file if present and applies environment
// variable overrides on top of it.
func LoadConfig(cfile string) *AppConfig {
	// Copy the defaults so env overrides never mutate DefaultAppConfig; the
	// struct holds only value fields, a shallow copy is enough.
	defaults := *DefaultAppConfig
	appconfig := &defaults
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			cfg := new(AppConfig)
			if err := yaml.Unmarshal(data, cfg); err == nil {
				appconfig = cfg
			}
		}
	}

	setEnvValue("WAPLEX_SYSTEM_WORKDIR", &appconfig.System.Workdir)
	setEnvBoolValue("WAPLEX_SYSTEM_DEBUG", &appconfig.System.Debug)

	setEnvValue("WAPLEX_WEB_HOST", &appconfig.Web.Host)
	setEnvIntValue("WAPLEX_WEB_PORT", &appconfig.Web.Port)
	setEnvValue("WAPLEX_WEB_JWT_SECRET", &appconfig.Web.JwtSecret)

	setEnvValue("WAPLEX_DB_TYPE", &appconfig.Database.Type)
	setEnvValue("WAPLEX_DB_HOST", &appconfig.Database.Host)
	setEnvIntValue("WAPLEX_DB_PORT", &appconfig.Database.Port)
	setEnvValue("WAPLEX_DB_NAME", &appconfig.Database.Name)
	setEnvValue("WAPLEX_DB_USER", &appconfig.Database.User)
	setEnvValue("WAPLEX_DB_PWD", &appconfig.Database.Passwd)

	setEnvValue("WAPLEX_LOGGER_MODE", &appconfig.Logger.Mode)
	setEnvBoolValue("WAPLEX_LOGGER_FILE_ENABLE", &appconfig.Logger.FileEnable)
	setEnvValue("WAPLEX_LOGGER_FILENAME", &appconfig.Logger.Filename)

	setEnvIntValue("WAPLEX_SESSION_WA_MAX_ATTEMPTS", &appconfig.Session.WhatsappMaxAttempts)
	setEnvIntValue("WAPLEX_SESSION_IG_MAX_ATTEMPTS", &appconfig.Session.InstagramMaxAttempts)
	setEnvIntValue("WAPLEX_SESSION_HEALTH_INTERVAL", &appconfig.Session.HealthIntervalSecs)
	setEnvIntValue("WAPLEX_SESSION_PAIRING_WINDOW", &appconfig.Session.PairingWindowSecs)
	setEnvBoolValue("WAPLEX_SESSION_AUTO_START", &appconfig.Session.AutoStart)

	return appconfig
}
