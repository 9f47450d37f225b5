package server

import (
	"net/http"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	fetchdomain "github.com/finanze/finanze/internal/fetch/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type availableEntity struct {
	ID               uuid.UUID               `json:"id"`
	Name             string                  `json:"name"`
	Type             entitydomain.EntityType `json:"type"`
	Features         []entitydomain.Feature  `json:"features"`
	CredentialFields []string                `json:"credential_fields"`
	Connected        bool                    `json:"connected"`
}

func (s *Server) ListAvailableEntities(c *gin.Context) {
	connectedIDs, err := s.credentials.ListAvailable(c.Request.Context(), s.db)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	connected := make(map[uuid.UUID]struct{}, len(connectedIDs))
	for _, id := range connectedIDs {
		connected[id] = struct{}{}
	}

	entities := s.registry.All()
	out := make([]availableEntity, 0, len(entities))
	for _, ent := range entities {
		conn, _ := s.registry.Lookup(ent.ID)
		_, isConnected := connected[ent.ID]
		out = append(out, availableEntity{
			ID:               ent.ID,
			Name:             ent.Name,
			Type:             ent.Type,
			Features:         ent.Features,
			CredentialFields: conn.CredentialFields(),
			Connected:        isConnected,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entities": out})
}

type connectRequest struct {
	Credentials   map[string]string `json:"credentials"`
	TwoFactorCode string            `json:"two_factor_code"`
	DeviceID      string            `json:"device_id"`
}

func (s *Server) ConnectEntity(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var body connectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.fetchSvc.Connect(
		c.Request.Context(),
		id,
		entitydomain.Credentials(body.Credentials),
		fetchdomain.LoginOptions{TwoFactorCode: body.TwoFactorCode, DeviceID: body.DeviceID},
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) DisconnectEntity(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.fetchSvc.Disconnect(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
