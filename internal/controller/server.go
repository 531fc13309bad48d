package controller

import (
	"context"
	"time"

	"croesus/internal/aws"
	"croesus/internal/cache"
	"croesus/internal/database"
	"croesus/internal/rabbitmq"
)

type ServerController interface {
	// Health checks every configured backend. Backends that are not
	// configured are left out of the result.
	Health(ctx context.Context) (map[string]bool, bool)
	Online() string
}

type serverController struct {
	db     database.Database
	cache  cache.Cache
	rabbit rabbitmq.Client
	files  aws.FileService
}

// NewServer takes the optional backends; any of them may be nil
func NewServer(db database.Database, cache cache.Cache, rabbit rabbitmq.Client, files aws.FileService) ServerController {
	return &serverController{
		db:     db,
		cache:  cache,
		rabbit: rabbit,
		files:  files,
	}
}

func (sc *serverController) Online() string {
	return "Online"
}

func (sc *serverController) Health(ctx context.Context) (map[string]bool, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	res := make(map[string]bool, 4)
	if sc.db != nil {
		res["database"] = sc.db.Health() == nil
	}
	if sc.cache != nil {
		res["cache"] = sc.cache.Ping(ctx) == nil
	}
	if sc.rabbit != nil {
		res["rabbit"] = sc.rabbit.Health() == nil
	}
	if sc.files != nil {
		res["file_service"] = sc.files.TestConnection(ctx) == nil
	}

	healthy := true
	for _, ok := range res {
		healthy = healthy && ok
	}
	return res, healthy
}
