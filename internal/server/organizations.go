package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/hera/internal/organization/domain"
	"github.com/smallbiznis/hera/internal/schema"
)

type organizationRequest struct {
	rpcEnvelope
	OrganizationName string         `json:"organization_name"`
	OrganizationCode string         `json:"organization_code"`
	Settings         map[string]any `json:"settings"`
}

// Organizations serves PROVISION, GET and DEACTIVATE on tenant rows.
func (s *Server) Organizations(c *gin.Context) {
	var req organizationRequest
	if !bindJSON(c, &req) {
		return
	}
	action := req.action()
	bindScope(c, action, req.OrganizationID, req.ActorUserID)

	ctx := c.Request.Context()
	var (
		org *schema.Organization
		err error
	)
	switch action {
	case "PROVISION":
		org, err = s.organizationSvc.Provision(ctx, organizationdomain.ProvisionRequest{
			ActorID:  req.ActorUserID,
			Name:     req.OrganizationName,
			Code:     req.OrganizationCode,
			Settings: req.Settings,
		})
	case "GET":
		if req.OrganizationID == 0 && strings.TrimSpace(req.OrganizationCode) != "" {
			org, err = s.organizationSvc.GetByCode(ctx, req.OrganizationCode)
		} else {
			org, err = s.organizationSvc.Get(ctx, req.OrganizationID)
		}
	case "DEACTIVATE":
		if err = s.organizationSvc.Deactivate(ctx, req.ActorUserID, req.OrganizationID); err == nil {
			org, err = s.organizationSvc.Get(ctx, req.OrganizationID)
		}
	default:
		err = newValidationError("action", "invalid_action", "unsupported action "+strings.TrimSpace(req.Action))
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}
