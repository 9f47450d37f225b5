package server

import (
	"net/http"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	fetchdomain "github.com/finanze/finanze/internal/fetch/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fetchRequest struct {
	EntityIDs     []string `json:"entity_ids"`
	Features      []string `json:"features"`
	Deep          bool     `json:"deep"`
	Force         bool     `json:"force"`
	TwoFactorCode string   `json:"two_factor_code"`
	DeviceID      string   `json:"device_id"`
}

func (s *Server) RunFetch(c *gin.Context) {
	var body fetchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	req := fetchdomain.Request{
		Deep:          body.Deep,
		Force:         body.Force,
		TwoFactorCode: body.TwoFactorCode,
		DeviceID:      body.DeviceID,
	}
	for _, raw := range body.EntityIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.EntityIDs = append(req.EntityIDs, id)
	}
	for _, raw := range body.Features {
		feature, err := entitydomain.ParseFeature(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		req.Features = append(req.Features, feature)
	}

	result, err := s.fetchSvc.Run(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
