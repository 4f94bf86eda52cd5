package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagemagic/pagemagic/internal/service/pages"
	"github.com/pagemagic/pagemagic/pkg/models"
)

// page looks up the :id page, writing a 404 when it is not open
func (s *Server) page(c *gin.Context) (*pages.Page, bool) {
	p, err := s.pages.Get(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	return p, true
}

func (s *Server) handleOpenPage(c *gin.Context) {
	var req OpenPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	p, err := s.pages.Open(ctx, pages.OpenRequest{URL: req.URL, HTML: req.HTML})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, p.Info(ctx))
}

func (s *Server) handleListPages(c *gin.Context) {
	list := s.pages.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"pages": list,
		"count": len(list),
	})
}

func (s *Server) handleGetPage(c *gin.Context) {
	p, ok := s.page(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p.Info(c.Request.Context()))
}

func (s *Server) handleClosePage(c *gin.Context) {
	pageID := c.Param("id")
	if err := s.pages.Close(c.Request.Context(), pageID); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "page closed",
		"page_id": pageID,
	})
}

func (s *Server) handleGetPageHTML(c *gin.Context) {
	p, ok := s.page(c)
	if !ok {
		return
	}

	html, err := p.HTML()
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (s *Server) handleGetPageTitle(c *gin.Context) {
	p, ok := s.page(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"title": p.Title()})
}

// bridgeStatus is 200 for a successful bridge call and 422 otherwise. The
// body is the BridgeResult either way.
func bridgeStatus(res models.BridgeResult) int {
	if res.Success {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

func (s *Server) handleInjectCSS(c *gin.Context) {
	p, ok := s.page(c)
	if !ok {
		return
	}

	var req InjectCSSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	res := p.InjectCSS(req.CSS)
	c.JSON(bridgeStatus(res), res)
}

func (s *Server) handleRemoveCSS(c *gin.Context) {
	p, ok := s.page(c)
	if !ok {
		return
	}
	res := p.RemoveCSS()
	c.JSON(bridgeStatus(res), res)
}

func (s *Server) handleReloadCSS(c *gin.Context) {
	p, ok := s.page(c)
	if !ok {
		return
	}
	res := p.ReloadCSS(c.Request.Context())
	c.JSON(bridgeStatus(res), res)
}

func (s *Server) handleGenerate(c *gin.Context) {
	p, ok := s.page(c)
	if !ok {
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	result, err := p.Generate(c.Request.Context(), req.Prompt)
	if err != nil {
		s.respondError(c, err)
		return
	}

	// Other pages sharing the scope pick up the new layer too
	s.pages.ReloadAll(c.Request.Context())

	c.JSON(http.StatusOK, result)
}
