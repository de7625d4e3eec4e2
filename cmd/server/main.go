// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/joachimageron/WhoIsIt-sub003/internal/auth"
	"github.com/joachimageron/WhoIsIt-sub003/internal/cache"
	"github.com/joachimageron/WhoIsIt-sub003/internal/config"
	"github.com/joachimageron/WhoIsIt-sub003/internal/database"
	"github.com/joachimageron/WhoIsIt-sub003/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using process environment")
	}
	cfg := config.Load()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Both collaborators are best-effort: the game runs on in-memory state
	// and merely loses recovery material and journaling without them.
	deps := server.Deps{Logger: logrus.StandardLogger()}
	if cfg.DatabaseURL != "" {
		if err := database.Connect(ctx, cfg.DatabaseURL); err != nil {
			logrus.WithError(err).Warn("database unavailable, running without persistence")
		} else {
			defer database.Close()
			deps.Store = database.Store{}
			deps.Catalog = database.Store{}
			deps.Characters = database.ListCharacterIDs
		}
	}
	if cfg.RedisAddr != "" {
		if err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword); err != nil {
			logrus.WithError(err).Warn("redis unavailable, running without action journal")
		} else {
			defer cache.Close()
			deps.Journal = cache.Journal{}
		}
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	srv := server.New(cfg, tokens, deps)

	logrus.WithField("addr", cfg.Addr).Info("listening")
	if err := http.ListenAndServe(cfg.Addr, srv.Handler()); err != nil {
		logrus.WithError(err).Fatal("server exited")
	}
}
