package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagemagic/pagemagic/internal/service/pages"
	"github.com/pagemagic/pagemagic/pkg/models"
)

// pageScope looks up the :id page and resolves its active scope
func (s *Server) pageScope(c *gin.Context) (*pages.Page, models.ScopeKey, bool) {
	p, ok := s.page(c)
	if !ok {
		return nil, "", false
	}
	key, err := p.Scope(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return nil, "", false
	}
	return p, key, true
}

// stylesChanged reapplies stored styles after a stack mutation. Every open
// page is reloaded since several may share the scope.
func (s *Server) stylesChanged(c *gin.Context, p *pages.Page) {
	if p != nil {
		p.MarkChanged()
	}
	s.pages.ReloadAll(c.Request.Context())
}

func (s *Server) handleListHistory(c *gin.Context) {
	_, key, ok := s.pageScope(c)
	if !ok {
		return
	}

	entries, err := s.styles.List(c.Request.Context(), key)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scope":        key,
		"entries":      entries,
		"count":        len(entries),
		"all_disabled": models.AllDisabled(entries),
	})
}

func (s *Server) handleToggleHistory(c *gin.Context) {
	p, key, ok := s.pageScope(c)
	if !ok {
		return
	}

	entryID := c.Param("entry")
	if err := s.styles.Toggle(c.Request.Context(), key, entryID); err != nil {
		s.respondError(c, err)
		return
	}
	s.stylesChanged(c, p)

	c.JSON(http.StatusOK, gin.H{
		"message":  "entry toggled",
		"scope":    key,
		"entry_id": entryID,
	})
}

func (s *Server) handleEditHistory(c *gin.Context) {
	p, key, ok := s.pageScope(c)
	if !ok {
		return
	}

	prompt, err := s.styles.Edit(c.Request.Context(), key, c.Param("entry"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.stylesChanged(c, p)

	c.JSON(http.StatusOK, gin.H{
		"scope":  key,
		"prompt": prompt,
	})
}

func (s *Server) handleRemoveHistory(c *gin.Context) {
	p, key, ok := s.pageScope(c)
	if !ok {
		return
	}

	entryID := c.Param("entry")
	if err := s.styles.Remove(c.Request.Context(), key, entryID); err != nil {
		s.respondError(c, err)
		return
	}
	s.stylesChanged(c, p)

	c.JSON(http.StatusOK, gin.H{
		"message":  "entry removed",
		"scope":    key,
		"entry_id": entryID,
	})
}

func (s *Server) handleToggleAllHistory(c *gin.Context) {
	p, key, ok := s.pageScope(c)
	if !ok {
		return
	}

	enabled, err := s.styles.ToggleAll(c.Request.Context(), key)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.stylesChanged(c, p)

	c.JSON(http.StatusOK, gin.H{
		"scope":   key,
		"enabled": enabled,
	})
}

func (s *Server) handleClearHistory(c *gin.Context) {
	p, key, ok := s.pageScope(c)
	if !ok {
		return
	}

	if err := s.styles.Clear(c.Request.Context(), key); err != nil {
		s.respondError(c, err)
		return
	}
	s.stylesChanged(c, p)

	c.JSON(http.StatusOK, gin.H{
		"message": "history cleared",
		"scope":   key,
	})
}

func (s *Server) handleGetScope(c *gin.Context) {
	ctx := c.Request.Context()

	domainWide, err := s.resolver.DomainWide(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	response := gin.H{"domain_wide": domainWide}
	if pageID := c.Query("page_id"); pageID != "" {
		p, err := s.pages.Get(pageID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		key, err := p.Scope(ctx)
		if err != nil {
			s.respondError(c, err)
			return
		}
		response["page_id"] = pageID
		response["scope"] = key
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleSetScope(c *gin.Context) {
	var req SetScopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	p, err := s.pages.Get(req.PageID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	key, err := s.resolver.SetDomainWide(ctx, p.URL(), *req.DomainWide)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.pages.ReloadAll(ctx)

	c.JSON(http.StatusOK, gin.H{
		"domain_wide": *req.DomainWide,
		"scope":       key,
	})
}

func (s *Server) handleListSites(c *gin.Context) {
	ctx := c.Request.Context()

	sites, err := s.styles.Sites(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	stats, err := s.styles.Stats(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sites": sites,
		"count": len(sites),
		"stats": stats,
	})
}

func (s *Server) handleClearSite(c *gin.Context) {
	key := models.ScopeKey(c.Query("scope"))
	if key == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "scope query parameter is required",
			RequestID: c.GetString("request_id"),
		})
		return
	}

	if err := s.styles.Clear(c.Request.Context(), key); err != nil {
		s.respondError(c, err)
		return
	}
	s.stylesChanged(c, nil)

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("styles cleared for %s", key),
		"scope":   key,
	})
}

func (s *Server) handleClearAllStyles(c *gin.Context) {
	removed, err := s.styles.ClearAll(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.stylesChanged(c, nil)

	c.JSON(http.StatusOK, gin.H{
		"message":      "all styles cleared",
		"keys_removed": removed,
	})
}
