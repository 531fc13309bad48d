package server

import (
	"fmt"
	"net/http"
	"time"

	"croesus/internal/aws"
	"croesus/internal/cache"
	"croesus/internal/config"
	"croesus/internal/controller"
	"croesus/internal/database"
	"croesus/internal/rabbitmq"
	"croesus/internal/relay"
)

type Server struct {
	sc     controller.ServerController
	stc    controller.StatsController
	config config.HTTPConfig
}

// New builds the read-only status API over a relay. db, cache, rabbit and
// fileService are only health-checked and may be nil.
func New(cfg config.HTTPConfig, rl *relay.Relay, db database.Database, cache cache.Cache, rabbit rabbitmq.Client, fileService aws.FileService) *http.Server {
	var games database.GameDatabase
	if db != nil {
		games = db
	}

	server := Server{
		sc:     controller.NewServer(db, cache, rabbit, fileService),
		stc:    controller.NewStats(rl.Stats, rl.Streaks, rl.History, games),
		config: cfg,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%v", cfg.Port),
		Handler:      server.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
