// Package heraclient is a thin HTTP client for the HERA action API.
package heraclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-resty/resty/v2"
	postingdomain "github.com/smallbiznis/hera/internal/posting/domain"
	"github.com/smallbiznis/hera/internal/smartcode"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRetryCount = 2
)

var ErrMissingBaseURL = errors.New("missing_base_url")

// APIError is a non-2xx answer decoded from the server's error envelope.
type APIError struct {
	Status  int                    `json:"-"`
	Type    string                 `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Summary *postingdomain.Summary `json:"summary,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hera api %d %s: %s", e.Status, e.Code, e.Message)
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

type Client struct {
	http *resty.Client
	log  *zap.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

func WithRetryCount(n int) Option {
	return func(c *Client) { c.http.SetRetryCount(n) }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log.Named("heraclient")
		}
	}
}

// New builds a client for the server at baseURL. Only transport failures
// and 5xx answers are retried.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	c := &Client{http: httpClient, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type PostDailyInput struct {
	ActorUserID    snowflake.ID
	OrganizationID snowflake.ID
	BranchID       snowflake.ID
	Day            string
}

type postingEnvelope struct {
	Action         string                    `json:"action,omitempty"`
	ActorUserID    snowflake.ID              `json:"actor_user_id"`
	OrganizationID snowflake.ID              `json:"organization_id"`
	BranchID       snowflake.ID              `json:"branch_id,omitempty"`
	Day            string                    `json:"day,omitempty"`
	Policy         *postingdomain.PolicyFile `json:"policy,omitempty"`
}

type postingData struct {
	Action  string                 `json:"action"`
	Result  *postingdomain.Result  `json:"result,omitempty"`
	Summary *postingdomain.Summary `json:"summary,omitempty"`
	Policy  *postingdomain.Policy  `json:"policy,omitempty"`
}

// PostDaily posts one branch-day journal.
func (c *Client) PostDaily(ctx context.Context, in PostDailyInput) (*postingdomain.Result, error) {
	var out postingData
	err := c.call(ctx, "/api/v2/postings/daily", postingEnvelope{
		ActorUserID:    in.ActorUserID,
		OrganizationID: in.OrganizationID,
		BranchID:       in.BranchID,
		Day:            in.Day,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Summarize aggregates a branch-day without posting it.
func (c *Client) Summarize(ctx context.Context, in PostDailyInput) (*postingdomain.Summary, error) {
	var out postingData
	err := c.call(ctx, "/api/v2/postings", postingEnvelope{
		Action:         "SUMMARIZE",
		ActorUserID:    in.ActorUserID,
		OrganizationID: in.OrganizationID,
		BranchID:       in.BranchID,
		Day:            in.Day,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Summary, nil
}

// ApplyPolicy upserts a posting policy from its file form.
func (c *Client) ApplyPolicy(ctx context.Context, actorID, orgID snowflake.ID, file postingdomain.PolicyFile) (*postingdomain.Policy, error) {
	var out postingData
	err := c.call(ctx, "/api/v2/postings", postingEnvelope{
		Action:         "APPLY_POLICY",
		ActorUserID:    actorID,
		OrganizationID: orgID,
		Policy:         &file,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Policy, nil
}

func (c *Client) ValidateSmartCode(ctx context.Context, code string) (*smartcode.Result, error) {
	var out smartcode.Result
	if err := c.call(ctx, "/api/v2/smart-codes/validate", map[string]string{"smart_code": code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, path string, body, data any) error {
	var (
		envelope struct {
			Data any `json:"data"`
		}
		apiErr errorEnvelope
	)
	envelope.Data = data

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&envelope).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		c.log.Warn("request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("post %s: %w", path, err)
	}
	if resp.IsError() {
		e := apiErr.Error
		e.Status = resp.StatusCode()
		if e.Code == "" {
			e.Code = http.StatusText(e.Status)
			e.Message = strings.TrimSpace(resp.String())
		}
		c.log.Debug("request rejected",
			zap.String("path", path),
			zap.Int("status", e.Status),
			zap.String("code", e.Code),
		)
		return &e
	}
	return nil
}
