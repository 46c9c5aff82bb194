package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hera/internal/authorization"
	transactiondomain "github.com/smallbiznis/hera/internal/transaction/domain"
)

// Transactions serves CREATE, READ, UPDATE and DELETE on transactions.
func (s *Server) Transactions(c *gin.Context) {
	var req transactiondomain.Request
	if !bindJSON(c, &req) {
		return
	}
	action := strings.ToUpper(strings.TrimSpace(string(req.Action)))
	req.Action = transactiondomain.Action(action)
	bindScope(c, action, req.OrganizationID, req.ActorUserID)
	if !s.authorize(c, req.OrganizationID, req.ActorUserID, authorization.ObjectTransaction, crudAction(action)) {
		return
	}

	resp, err := s.transactionSvc.Execute(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
