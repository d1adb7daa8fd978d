// Package main runs a swarm of scripted headless clients against a relay
// server.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"
	"go.uber.org/zap"

	"github.com/cory-johannsen/edgemultiplay/internal/bot"
	"github.com/cory-johannsen/edgemultiplay/internal/client"
	"github.com/cory-johannsen/edgemultiplay/internal/config"
	"github.com/cory-johannsen/edgemultiplay/internal/observability"
	"github.com/cory-johannsen/edgemultiplay/internal/scripting"
	"github.com/cory-johannsen/edgemultiplay/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	count := flag.Int("bots", -1, "number of bots; overrides bot.count when >= 0")
	script := flag.String("script", "", "Lua behaviour script; overrides bot.script")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *count >= 0 {
		cfg.Bot.Count = *count
	}
	if *script != "" {
		cfg.Bot.Script = *script
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	opts, err := client.OptionsFromConfig(&cfg)
	if err != nil {
		logger.Fatal("building client options", zap.Error(err))
	}

	scripts := scripting.NewManager(logger.Named("scripting"))
	defer scripts.Close()

	gate := sizedwaitgroup.New(cfg.Bot.Concurrency)
	lifecycle := server.NewLifecycle(logger)
	for i := 0; i < cfg.Bot.Count; i++ {
		id := "bot-" + uuid.NewString()[:8]
		b, err := bot.New(logger.With(zap.String("bot", id)), id, &cfg, opts, scripts, &gate)
		if err != nil {
			logger.Fatal("creating bot", zap.String("bot", id), zap.Error(err))
		}
		lifecycle.Add(id, b)
	}

	logger.Info("bots initialized",
		zap.Int("count", cfg.Bot.Count),
		zap.Int("concurrency", cfg.Bot.Concurrency),
		zap.String("server", cfg.Server.ReliableAddr()),
		zap.String("script", cfg.Bot.Script),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("bot error", zap.Error(err))
	}
}
