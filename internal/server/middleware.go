package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/hera/internal/observability/logger"
	"github.com/smallbiznis/hera/internal/orgcontext"
)

const contextActionKey = obslogger.ActionKey

// rpcEnvelope is the shared head of every action request.
type rpcEnvelope struct {
	Action         string       `json:"action"`
	ActorUserID    snowflake.ID `json:"actor_user_id"`
	OrganizationID snowflake.ID `json:"organization_id"`
}

func (e rpcEnvelope) action() string {
	return strings.ToUpper(strings.TrimSpace(e.Action))
}

// bindScope records the action for logs and metrics and carries the actor and
// organization on the request context.
func bindScope(c *gin.Context, action string, orgID, actorID snowflake.ID) {
	c.Set(contextActionKey, action)
	ctx := c.Request.Context()
	if orgID != 0 {
		ctx = orgcontext.WithOrgID(ctx, orgID)
	}
	if actorID != 0 {
		ctx = orgcontext.WithActor(ctx, actorID)
	}
	c.Request = c.Request.WithContext(ctx)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		AbortWithError(c, invalidRequestError(err.Error()))
		return false
	}
	return true
}
