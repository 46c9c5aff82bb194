package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hera/internal/authorization"
)

// authorize checks the actor's roles when authorization is enabled. Missing
// actor or organization ids are left to the services to reject.
func (s *Server) authorize(c *gin.Context, orgID, actorID snowflake.ID, object, action string) bool {
	if s.authzSvc == nil || orgID == 0 || actorID == 0 {
		return true
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), orgID, actorID, object, action); err != nil {
		AbortWithError(c, err)
		return false
	}
	return true
}

// crudAction maps a CRUD verb onto the authorization action set.
func crudAction(action string) string {
	switch action {
	case "CREATE":
		return authorization.ActionCreate
	case "UPDATE":
		return authorization.ActionUpdate
	case "DELETE":
		return authorization.ActionDelete
	default:
		return authorization.ActionRead
	}
}
