package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"croesus/internal/controller"
	"croesus/internal/database"

	"github.com/gin-gonic/gin"
)

const defaultTopStreaks = 10

func (s *Server) healthHandler(c *gin.Context) {
	res, healthy := s.sc.Health(c.Request.Context())
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) onlineHandler(c *gin.Context) {
	c.String(http.StatusOK, s.sc.Online())
}

func (s *Server) statsHandler(c *gin.Context) {
	period := c.Param("period")
	bucket, err := s.stc.Stats(period)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period. Must be 'hour', 'day' or 'full'"})
		return
	}
	c.JSON(http.StatusOK, bucket)
}

func (s *Server) streakHandler(c *gin.Context) {
	player := c.Param("player")
	current, longest, err := s.stc.Streak(player)
	if errors.Is(err, controller.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No streaks for " + player})
		return
	}
	c.JSON(http.StatusOK, gin.H{"player": player, "current": current, "longest": longest})
}

func (s *Server) topStreaksHandler(c *gin.Context) {
	n := defaultTopStreaks
	if limit := c.Query("limit"); limit != "" {
		var err error
		if n, err = strconv.Atoi(limit); err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
	}
	c.JSON(http.StatusOK, s.stc.TopStreaks(n))
}

func (s *Server) ascHandler(c *gin.Context) {
	player := c.Param("player")
	asc, games, err := s.stc.Ascensions(player)
	if errors.Is(err, controller.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No ascensions for " + player, "games": games})
		return
	}
	c.JSON(http.StatusOK, gin.H{"player": player, "games": games, "ascensions": asc})
}

func (s *Server) lastGameHandler(c *gin.Context) {
	url, err := s.stc.LastGame(c.Query("player"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No last game recorded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) lastAscHandler(c *gin.Context) {
	url, err := s.stc.LastAscension(c.Query("player"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No last ascension recorded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// distributionHandler takes an optional since=YYYY-MM-DD (UTC)
func (s *Server) distributionHandler(c *gin.Context) {
	var since time.Time
	if v := c.Query("since"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since parameter, want YYYY-MM-DD"})
			return
		}
		since = t
	}

	counts, err := s.stc.Distribution(c.Request.Context(), c.Param("field"), since)
	switch {
	case errors.Is(err, controller.ErrArchiveDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrUnknownField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, counts)
	}
}
