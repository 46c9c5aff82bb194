package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hera/internal/smartcode"
)

type smartCodeRequest struct {
	SmartCode string `json:"smart_code"`
}

// ValidateSmartCode reports every grammar violation of a code without
// touching storage.
func (s *Server) ValidateSmartCode(c *gin.Context) {
	var req smartCodeRequest
	if !bindJSON(c, &req) {
		return
	}
	c.Set(contextActionKey, "VALIDATE")
	c.JSON(http.StatusOK, gin.H{"data": smartcode.Validate(req.SmartCode)})
}
