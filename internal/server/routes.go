package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	if len(s.config.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.CORS.AllowedOrigins,
			AllowMethods:     s.config.CORS.AllowedMethods,
			AllowHeaders:     s.config.CORS.AllowedHeaders,
			AllowCredentials: s.config.CORS.AllowCredentials,
			MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
		}))
	}

	r.GET("/health", s.healthHandler)
	r.GET("/online", s.onlineHandler)

	r.GET("/stats/:period", s.statsHandler)
	r.GET("/streak/:player", s.streakHandler)
	r.GET("/streaks", s.topStreaksHandler)
	r.GET("/asc/:player", s.ascHandler)
	r.GET("/lastgame", s.lastGameHandler)
	r.GET("/lastasc", s.lastAscHandler)

	archive := r.Group("/archive")
	archive.GET("/distribution/:field", s.distributionHandler)

	return r
}
