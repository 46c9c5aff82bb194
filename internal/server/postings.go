package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hera/internal/authorization"
	postingdomain "github.com/smallbiznis/hera/internal/posting/domain"
)

const (
	postingActionPostDaily     = "POST_DAILY"
	postingActionSummarize     = "SUMMARIZE"
	postingActionResolvePolicy = "RESOLVE_POLICY"
	postingActionApplyPolicy   = "APPLY_POLICY"
)

type postingRequest struct {
	rpcEnvelope
	BranchID snowflake.ID              `json:"branch_id"`
	Day      string                    `json:"day"`
	Policy   *postingdomain.PolicyFile `json:"policy"`
}

type postingResponse struct {
	Action  string                 `json:"action"`
	Result  *postingdomain.Result  `json:"result,omitempty"`
	Summary *postingdomain.Summary `json:"summary,omitempty"`
	Policy  *postingdomain.Policy  `json:"policy,omitempty"`
}

// PostDaily posts one branch-day. The action field is ignored.
func (s *Server) PostDaily(c *gin.Context) {
	var req postingRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Action = postingActionPostDaily
	s.servePosting(c, req)
}

// Postings serves POST_DAILY, SUMMARIZE, RESOLVE_POLICY and APPLY_POLICY.
func (s *Server) Postings(c *gin.Context) {
	var req postingRequest
	if !bindJSON(c, &req) {
		return
	}
	s.servePosting(c, req)
}

func (s *Server) servePosting(c *gin.Context, req postingRequest) {
	action := req.action()
	bindScope(c, action, req.OrganizationID, req.ActorUserID)

	authzAction := authorization.ActionRead
	switch action {
	case postingActionPostDaily:
		authzAction = authorization.ActionPost
	case postingActionApplyPolicy:
		authzAction = authorization.ActionUpdate
	}
	if !s.authorize(c, req.OrganizationID, req.ActorUserID, authorization.ObjectPosting, authzAction) {
		return
	}

	ctx := c.Request.Context()
	resp := postingResponse{Action: action}
	var err error
	switch action {
	case postingActionPostDaily:
		resp.Result, err = s.postingSvc.PostDaily(ctx, postingdomain.PostRequest{
			ActorUserID:    req.ActorUserID,
			OrganizationID: req.OrganizationID,
			BranchID:       req.BranchID,
			Day:            req.Day,
		})
		if resp.Result != nil {
			resp.Summary = resp.Result.Summary
		}
	case postingActionSummarize:
		resp.Summary, err = s.summarize(c, req)
	case postingActionResolvePolicy:
		resp.Policy, err = s.postingSvc.ResolvePolicy(ctx, postingdomain.PolicyRequest{
			ActorUserID:    req.ActorUserID,
			OrganizationID: req.OrganizationID,
			BranchID:       req.BranchID,
		})
	case postingActionApplyPolicy:
		if req.Policy == nil {
			err = newValidationError("policy", "invalid_policy", "policy is required")
			break
		}
		resp.Policy, err = s.postingSvc.ApplyPolicy(ctx, postingdomain.ApplyPolicyRequest{
			ActorUserID:    req.ActorUserID,
			OrganizationID: req.OrganizationID,
			File:           *req.Policy,
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

// summarize reads the branch-day in the zone of the branch's policy.
func (s *Server) summarize(c *gin.Context, req postingRequest) (*postingdomain.Summary, error) {
	day, err := time.Parse(postingdomain.DayLayout, strings.TrimSpace(req.Day))
	if err != nil {
		return nil, postingdomain.ErrInvalidDay
	}
	ctx := c.Request.Context()
	policy, err := s.postingSvc.ResolvePolicy(ctx, postingdomain.PolicyRequest{
		ActorUserID:    req.ActorUserID,
		OrganizationID: req.OrganizationID,
		BranchID:       req.BranchID,
	})
	if err != nil && !errors.Is(err, postingdomain.ErrNoPolicy) {
		return nil, err
	}
	var loc *time.Location
	if policy != nil && policy.Timezone != "" {
		if loc, err = policy.Location(); err != nil {
			return nil, err
		}
	}
	summary, err := s.postingSvc.Summarize(ctx, postingdomain.SummaryRequest{
		ActorUserID:    req.ActorUserID,
		OrganizationID: req.OrganizationID,
		BranchID:       req.BranchID,
		Day:            day,
		Location:       loc,
	})
	if err != nil && summary != nil {
		return nil, &postingdomain.Error{Err: err, Summary: summary}
	}
	return summary, err
}
