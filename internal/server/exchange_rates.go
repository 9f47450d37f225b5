package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetExchangeRates(c *gin.Context) {
	allowCached := true
	if raw := c.Query("cached"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		allowCached = parsed
	}

	rates, err := s.exchange.Matrix(c.Request.Context(), allowCached)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rates)
}
