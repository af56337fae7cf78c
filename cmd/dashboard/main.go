package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/docker/client"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ismaildakrory/immich-memories-notify/internal/config"
	"github.com/ismaildakrory/immich-memories-notify/internal/dashboard"
	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

type env struct {
	ConfigPath     string `envconfig:"CONFIG_PATH" default:"./config.yaml"`
	StatePath      string `envconfig:"STATE_PATH"`
	EnvPath        string `envconfig:"ENV_PATH" default:"./.env"`
	Addr           string `envconfig:"DASHBOARD_ADDR" default:":5000"`
	User           string `envconfig:"DASHBOARD_USER" default:"admin"`
	Token          string `envconfig:"DASHBOARD_TOKEN"`
	NotifyBin      string `envconfig:"NOTIFY_BIN" default:"notify"`
	ComposeProject string `envconfig:"COMPOSE_PROJECT"`
}

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	var e env
	if err := envconfig.Process("", &e); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}

	// The dashboard must stay up on a broken config (it exists to fix
	// one), so config-derived settings degrade to defaults.
	level := config.DefaultLogLevel
	logFile := ""
	statePath := e.StatePath
	if cfg, err := config.Load(e.ConfigPath); err == nil {
		level = cfg.Settings.Level()
		logFile = cfg.Settings.LogFile
		if statePath == "" {
			statePath = cfg.Settings.StatePath()
		}
	} else {
		fmt.Fprintln(os.Stderr, "warning: config not loadable:", err)
	}
	if statePath == "" {
		statePath = config.DefaultStateFile
	}

	logCfg := logx.Config{Level: level, Console: true}
	if logFile != "" {
		logCfg.File = logx.FileConfig{Enabled: true, Path: logFile}
	}
	svc, log := logx.New(logCfg)
	defer svc.Close()

	if e.Token == "" {
		log.Warn("dashboard auth disabled (DASHBOARD_TOKEN not set)")
	}

	var docker dashboard.ContainerClient
	if cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation()); err != nil {
		log.Warn("docker unavailable, restart endpoints disabled", logx.Err(err))
	} else {
		docker = cli
	}

	srv := dashboard.New(dashboard.Options{
		Addr:           e.Addr,
		ConfigPath:     e.ConfigPath,
		StatePath:      statePath,
		EnvPath:        e.EnvPath,
		Username:       e.User,
		Token:          e.Token,
		NotifyBin:      e.NotifyBin,
		ComposeProject: e.ComposeProject,
	}, docker, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		log.Error("dashboard stopped", logx.Err(err))
		return 1
	}
	return 0
}
