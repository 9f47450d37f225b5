package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetPosition(c *gin.Context) {
	currency := strings.ToUpper(strings.TrimSpace(c.Query("currency")))
	if currency == "" {
		currency = s.scrape.Get().ReportingCurrency
	}

	position, err := s.assemblySvc.Assemble(c.Request.Context(), currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, position)
}
