package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagemagic/pagemagic/internal/service/settings"
	"github.com/pagemagic/pagemagic/pkg/models"
)

func (s *Server) handleGetDailyUsage(c *gin.Context) {
	ctx := c.Request.Context()

	date := c.Query("date")
	if date == "" {
		date = s.ledger.Today()
	}
	entry, err := s.ledger.GetDaily(ctx, date)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":        date,
		"entry":       entry,
		"model_names": s.settings.DisplayNames(ctx, entry),
	})
}

func (s *Server) handleListUsageDays(c *gin.Context) {
	days, err := s.ledger.Days(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"days":  days,
		"count": len(days),
	})
}

func (s *Server) handleGetTotalUsage(c *gin.Context) {
	ctx := c.Request.Context()

	entry, err := s.ledger.GetTotal(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entry":       entry,
		"model_names": s.settings.DisplayNames(ctx, entry),
	})
}

func (s *Server) handleClearUsage(c *gin.Context) {
	removed, err := s.settings.ClearUsageData(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "usage data cleared",
		"keys_removed": removed,
	})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	current, err := s.settings.Get(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, current)
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	updated, err := s.settings.Update(c.Request.Context(), settings.UpdateRequest{
		APIKey: req.APIKey,
		Model:  req.Model,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleListModels(c *gin.Context) {
	ctx := c.Request.Context()

	list, err := s.settings.RefreshModels(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	selected, err := s.settings.Model(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Model{}
	}

	c.JSON(http.StatusOK, gin.H{
		"models":   list,
		"count":    len(list),
		"selected": selected,
	})
}

func (s *Server) handleFactoryReset(c *gin.Context) {
	ctx := c.Request.Context()

	removed, err := s.settings.FactoryReset(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.pages.ReloadAll(ctx)

	c.JSON(http.StatusOK, gin.H{
		"message":      "all data reset",
		"keys_removed": removed,
	})
}
