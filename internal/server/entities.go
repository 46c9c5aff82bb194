package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hera/internal/authorization"
	entitydomain "github.com/smallbiznis/hera/internal/entity/domain"
	relationshipdomain "github.com/smallbiznis/hera/internal/relationship/domain"
)

type entityRequest struct {
	rpcEnvelope
	Entity        entitydomain.EntityInput         `json:"entity"`
	DynamicFields []entitydomain.DynamicFieldInput `json:"dynamic_fields"`
	Relationships []relationshipdomain.Input       `json:"relationships"`
	Options       entitydomain.Options             `json:"options"`
}

// Entities serves CREATE, READ, UPDATE and DELETE on entities.
func (s *Server) Entities(c *gin.Context) {
	var req entityRequest
	if !bindJSON(c, &req) {
		return
	}
	action := req.action()
	bindScope(c, action, req.OrganizationID, req.ActorUserID)
	if !s.authorize(c, req.OrganizationID, req.ActorUserID, authorization.ObjectEntity, crudAction(action)) {
		return
	}

	resp, err := s.entitySvc.Execute(c.Request.Context(), entitydomain.Request{
		Action:         entitydomain.Action(action),
		ActorUserID:    req.ActorUserID,
		OrganizationID: req.OrganizationID,
		Entity:         req.Entity,
		DynamicFields:  req.DynamicFields,
		Relationships:  req.Relationships,
		Options:        req.Options,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
