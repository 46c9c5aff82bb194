package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hera/internal/authorization"
	relationshipdomain "github.com/smallbiznis/hera/internal/relationship/domain"
	"github.com/smallbiznis/hera/internal/schema"
)

const (
	relationshipActionUpsert     = "UPSERT"
	relationshipActionList       = "LIST"
	relationshipActionTransition = "TRANSITION_STATUS"
	relationshipActionHistory    = "HISTORY"
	relationshipActionClose      = "CLOSE"
)

type relationshipRequest struct {
	rpcEnvelope
	RelationshipID   snowflake.ID   `json:"relationship_id"`
	EntityID         snowflake.ID   `json:"entity_id"`
	FromEntityID     snowflake.ID   `json:"from_entity_id"`
	ToEntityID       snowflake.ID   `json:"to_entity_id"`
	RelationshipType string         `json:"relationship_type"`
	Status           string         `json:"status"`
	Reason           string         `json:"reason"`
	SmartCode        string         `json:"smart_code"`
	Data             map[string]any `json:"relationship_data"`
	IncludeInactive  bool           `json:"include_inactive"`
	Limit            int            `json:"limit"`
}

type relationshipResponse struct {
	Action        string                         `json:"action"`
	Relationship  *schema.Relationship           `json:"relationship,omitempty"`
	Relationships []schema.Relationship          `json:"relationships,omitempty"`
	Transition    *relationshipdomain.Transition `json:"transition,omitempty"`
}

// Relationships serves the edge operations and the status workflow.
func (s *Server) Relationships(c *gin.Context) {
	var req relationshipRequest
	if !bindJSON(c, &req) {
		return
	}
	action := req.action()
	bindScope(c, action, req.OrganizationID, req.ActorUserID)

	authzAction := authorization.ActionUpdate
	if action == relationshipActionList || action == relationshipActionHistory {
		authzAction = authorization.ActionRead
	}
	if !s.authorize(c, req.OrganizationID, req.ActorUserID, authorization.ObjectRelationship, authzAction) {
		return
	}

	ctx := c.Request.Context()
	resp := relationshipResponse{Action: action}
	var err error
	switch action {
	case relationshipActionUpsert:
		resp.Relationship, err = s.relationshipSvc.Upsert(ctx, relationshipdomain.UpsertRequest{
			ActorID:          req.ActorUserID,
			OrganizationID:   req.OrganizationID,
			FromEntityID:     req.FromEntityID,
			ToEntityID:       req.ToEntityID,
			RelationshipType: req.RelationshipType,
			Data:             req.Data,
			SmartCode:        req.SmartCode,
		})
	case relationshipActionList:
		resp.Relationships, err = s.relationshipSvc.List(ctx, relationshipdomain.ListRequest{
			OrganizationID:   req.OrganizationID,
			FromEntityID:     req.FromEntityID,
			ToEntityID:       req.ToEntityID,
			RelationshipType: req.RelationshipType,
			IncludeInactive:  req.IncludeInactive,
			Limit:            req.Limit,
		})
	case relationshipActionTransition:
		resp.Transition, err = s.relationshipSvc.TransitionStatus(ctx, relationshipdomain.TransitionRequest{
			ActorID:        req.ActorUserID,
			OrganizationID: req.OrganizationID,
			EntityID:       req.EntityID,
			Status:         req.Status,
			Reason:         req.Reason,
			SmartCode:      req.SmartCode,
			Data:           req.Data,
		})
	case relationshipActionHistory:
		resp.Relationships, err = s.relationshipSvc.History(ctx, relationshipdomain.HistoryRequest{
			OrganizationID:   req.OrganizationID,
			EntityID:         req.EntityID,
			RelationshipType: req.RelationshipType,
		})
	case relationshipActionClose:
		resp.Relationship, err = s.relationshipSvc.Close(ctx, relationshipdomain.CloseRequest{
			ActorID:        req.ActorUserID,
			OrganizationID: req.OrganizationID,
			RelationshipID: req.RelationshipID,
			Reason:         req.Reason,
		})
	default:
		err = newValidationError("action", "invalid_action", "unsupported action "+strings.TrimSpace(req.Action))
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
