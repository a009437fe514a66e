package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/waplex/waplex/config"
	"github.com/waplex/waplex/internal/adminapi"
	"github.com/waplex/waplex/internal/app"
	"github.com/waplex/waplex/internal/webserver"
	"go.uber.org/zap"
)

var (
	cfile    = flag.String("c", "waplex.yml", "config file")
	initdb   = flag.Bool("initdb", false, "drop and recreate all tables, then exit")
	showVer  = flag.Bool("v", false, "print version and exit")
	gitTag   = "unknown"
	gitBuild = "unknown"
)

func main() {
	flag.Parse()
	if *showVer {
		fmt.Printf("waplex %s (%s)\n", gitTag, gitBuild)
		return
	}

	cfg := config.LoadConfig(*cfile)
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	server := webserver.Init(cfg, application.DB())
	adminapi.Init(cfg, application.SessionManager(), application.Hub())

	if cfg.Session.AutoStart {
		go application.AutoStartSessions()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			zap.L().Error("webserver stopped", zap.Error(err))
		}
	case sig := <-sigCh:
		zap.L().Info("shutting down", zap.String("signal", sig.String()))
	}
}
