package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hera/internal/authorization"
	"github.com/smallbiznis/hera/internal/clock"
	"github.com/smallbiznis/hera/internal/config"
	entitydomain "github.com/smallbiznis/hera/internal/entity/domain"
	entityrepository "github.com/smallbiznis/hera/internal/entity/repository"
	entityservice "github.com/smallbiznis/hera/internal/entity/service"
	orgrepository "github.com/smallbiznis/hera/internal/organization/repository"
	orgservice "github.com/smallbiznis/hera/internal/organization/service"
	postingdomain "github.com/smallbiznis/hera/internal/posting/domain"
	postingservice "github.com/smallbiznis/hera/internal/posting/service"
	relationshiprepository "github.com/smallbiznis/hera/internal/relationship/repository"
	relationshipservice "github.com/smallbiznis/hera/internal/relationship/service"
	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/internal/schema/schematest"
	"github.com/smallbiznis/hera/internal/smartcode"
	transactiondomain "github.com/smallbiznis/hera/internal/transaction/domain"
	transactionrepository "github.com/smallbiznis/hera/internal/transaction/repository"
	transactionservice "github.com/smallbiznis/hera/internal/transaction/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testActor    = snowflake.ID(7)
	customerCode = "HERA.SALON.CRM.CUSTOMER.PROFILE.V1"
	fieldCode    = "HERA.SALON.CRM.CUSTOMER.PHONE.V1"
	glCode       = "HERA.FINANCE.GL.ACCOUNT.LEDGER.V1"
	saleCode     = "HERA.SALON.SALE.TXN.RETAIL.V1"
	saleLineCode = "HERA.SALON.SALE.LINE.SERVICE.V1"
)

type testServer struct {
	db     *gorm.DB
	node   *snowflake.Node
	org    snowflake.ID
	branch snowflake.ID
	engine *gin.Engine
}

func newTestServer(t *testing.T, authzEnabled bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := schematest.Open(t)
	node := schematest.Node(t)
	clk := clock.NewFakeClock(time.Date(2024, 6, 11, 3, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	orgs := orgservice.NewService(orgservice.Params{DB: db, Log: log, Repo: orgrepository.NewRepository(db), GenID: node, Clock: clk})
	rels := relationshipservice.NewService(relationshipservice.Params{
		DB: db, Log: log, Repo: relationshiprepository.NewRepository(db), Orgs: orgs, GenID: node, Clock: clk,
	})
	entities := entityservice.NewService(entityservice.Params{
		DB: db, Log: log, Repo: entityrepository.NewRepository(db), Orgs: orgs, Relationships: rels, GenID: node, Clock: clk,
	})
	transactions := transactionservice.NewService(transactionservice.Params{
		DB: db, Log: log, Repo: transactionrepository.NewRepository(db), Orgs: orgs, GenID: node, Clock: clk,
	})
	posting := postingservice.NewService(postingservice.Params{
		Log: log, Entities: entities, Transactions: transactions, Clock: clk,
	})

	enforcer, err := authorization.NewEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{DB: db, Log: log, Enforcer: enforcer})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{AuthzEnabled: authzEnabled},
		Log:             log,
		OrganizationSvc: orgs,
		EntitySvc:       entities,
		RelationshipSvc: rels,
		TransactionSvc:  transactions,
		PostingSvc:      posting,
		AuthzSvc:        authz,
	})

	org := schematest.SeedOrganization(t, db, node, "salon")
	return &testServer{
		db:     db,
		node:   node,
		org:    org,
		branch: schematest.SeedEntity(t, db, node, org, postingdomain.BranchEntityType, "Downtown"),
		engine: engine,
	}
}

func (ts *testServer) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Error
}

func (ts *testServer) createEntity(t *testing.T, entityType, name, code string) snowflake.ID {
	t.Helper()
	input := map[string]any{
		"entity_type": entityType,
		"entity_name": name,
		"smart_code":  customerCode,
	}
	if code != "" {
		input["entity_code"] = code
		input["smart_code"] = glCode
	}
	rec := ts.post(t, "/api/v2/entities", map[string]any{
		"action":          "create",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
		"entity":          input,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeData[entitydomain.Response](t, rec)
	require.NotNil(t, resp.Entity)
	return resp.Entity.ID
}

func (ts *testServer) sale(t *testing.T, at time.Time, service, vat int64) {
	t.Helper()
	rec := ts.post(t, "/api/v2/transactions", map[string]any{
		"action":          "CREATE",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
		"transaction": map[string]any{
			"transaction_type":          schema.TransactionTypeSale,
			"smart_code":                saleCode,
			"transaction_date":          at.Format(time.RFC3339),
			"transaction_currency_code": "AED",
			"metadata":                  map[string]any{"branch_id": ts.branch.String()},
		},
		"lines": []map[string]any{
			{"line_number": 1, "line_type": schema.LineTypeService, "line_amount": service, "smart_code": saleLineCode},
			{"line_number": 2, "line_type": schema.LineTypeTax, "line_amount": vat, "smart_code": saleLineCode},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestEntityCreateAndReadWithDynamicFields(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.post(t, "/api/v2/entities", map[string]any{
		"action":          "CREATE",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
		"entity": map[string]any{
			"entity_type": "customer",
			"entity_name": "Layla",
			"smart_code":  customerCode,
		},
		"dynamic_fields": []map[string]any{
			{"field_name": "phone", "field_value": "+971500000000", "smart_code": fieldCode},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decodeData[entitydomain.Response](t, rec)
	require.NotNil(t, created.Entity)

	rec = ts.post(t, "/api/v2/entities", map[string]any{
		"action":          "READ",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
		"entity":          map[string]any{"id": created.Entity.ID.String()},
		"options":         map[string]any{"include_dynamic": true},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	read := decodeData[entitydomain.Response](t, rec)
	require.NotNil(t, read.Entity)
	assert.Equal(t, "Layla", read.Entity.EntityName)
	require.Len(t, read.Entity.DynamicFields, 1)
	assert.Equal(t, "phone", read.Entity.DynamicFields[0].FieldName)
	require.NotNil(t, read.Entity.DynamicFields[0].ValueText)
	assert.Equal(t, "+971500000000", *read.Entity.DynamicFields[0].ValueText)
}

func TestEntityReadAcrossOrganizationsIsNotFound(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.createEntity(t, "customer", "Layla", "")
	other := schematest.SeedOrganization(t, ts.db, ts.node, "other")

	rec := ts.post(t, "/api/v2/entities", map[string]any{
		"action":          "READ",
		"actor_user_id":   testActor.String(),
		"organization_id": other.String(),
		"entity":          map[string]any{"id": id.String()},
	})
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	payload := decodeError(t, rec)
	assert.Equal(t, "NOT_FOUND", payload.Code)
	assert.Equal(t, typeNotFound, payload.Type)
}

func TestEntityInvalidSmartCodeListsViolations(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.post(t, "/api/v2/entities", map[string]any{
		"action":          "CREATE",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
		"entity": map[string]any{
			"entity_type": "customer",
			"entity_name": "Layla",
			"smart_code":  "ACME.crm.V1",
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	payload := decodeError(t, rec)
	assert.Equal(t, "SMART_CODE_INVALID", payload.Code)
	require.NotEmpty(t, payload.Errors)
	rules := make([]string, 0, len(payload.Errors))
	for _, e := range payload.Errors {
		rules = append(rules, e.Code)
	}
	assert.Contains(t, rules, string(smartcode.RulePrefix))
}

func TestTransactionUnbalancedJournalIsUnprocessable(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.post(t, "/api/v2/transactions", map[string]any{
		"action":          "CREATE",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
		"transaction": map[string]any{
			"transaction_type": schema.TransactionTypeJournalEntry,
			"smart_code":       "HERA.FINANCE.GL.JOURNAL.MANUAL.V1",
		},
		"lines": []map[string]any{
			{"line_number": 1, "line_type": "debit", "line_amount": 100, "debit_amount": 100, "smart_code": "HERA.FINANCE.GL.LINE.DEBIT.V1"},
			{"line_number": 2, "line_type": "credit", "line_amount": 90, "credit_amount": 90, "smart_code": "HERA.FINANCE.GL.LINE.CREDIT.V1"},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "UNBALANCED_JOURNAL", decodeError(t, rec).Code)
}

func TestTransactionCreateAndRead(t *testing.T) {
	ts := newTestServer(t, false)
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	ts.sale(t, at, 100, 5)

	rec := ts.post(t, "/api/v2/transactions", map[string]any{
		"action":          "read",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
		"options": map[string]any{
			"include_lines": true,
			"filters":       map[string]any{"transaction_type": schema.TransactionTypeSale},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeData[transactiondomain.Response](t, rec)
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, "AED", resp.Transactions[0].TransactionCurrencyCode)
	assert.Len(t, resp.Transactions[0].Lines, 2)
}

func TestRelationshipStatusWorkflow(t *testing.T) {
	ts := newTestServer(t, false)
	appointment := ts.createEntity(t, "appointment", "Cut and color", "")

	transition := func(status string) relationshipResponse {
		rec := ts.post(t, "/api/v2/relationships", map[string]any{
			"action":          "transition_status",
			"actor_user_id":   testActor.String(),
			"organization_id": ts.org.String(),
			"entity_id":       appointment.String(),
			"status":          status,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decodeData[relationshipResponse](t, rec)
	}

	first := transition("pending")
	require.NotNil(t, first.Transition)
	assert.Equal(t, "PENDING", first.Transition.Status)
	assert.True(t, first.Transition.Changed)

	second := transition("confirmed")
	require.NotNil(t, second.Transition)
	assert.True(t, second.Transition.Changed)
	require.NotNil(t, second.Transition.Previous)
	assert.False(t, second.Transition.Previous.IsActive)

	rec := ts.post(t, "/api/v2/relationships", map[string]any{
		"action":          "HISTORY",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
		"entity_id":       appointment.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	history := decodeData[relationshipResponse](t, rec)
	require.Len(t, history.Relationships, 2)
	assert.False(t, history.Relationships[0].IsActive)
	assert.True(t, history.Relationships[1].IsActive)
}

func TestRelationshipUnknownActionIsRejected(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.post(t, "/api/v2/relationships", map[string]any{
		"action":          "MERGE",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "INVALID_ACTION", decodeError(t, rec).Code)
}

func TestPostDailyOverHTTP(t *testing.T) {
	ts := newTestServer(t, false)
	for _, code := range []string{"1100", "4000", "4100", "2200"} {
		ts.createEntity(t, postingdomain.GLAccountEntityType, "Account "+code, code)
	}
	postDaily := func() *httptest.ResponseRecorder {
		return ts.post(t, "/api/v2/postings/daily", map[string]any{
			"actor_user_id":   testActor.String(),
			"organization_id": ts.org.String(),
			"branch_id":       ts.branch.String(),
			"day":             "2024-06-10",
		})
	}

	rec := postDaily()
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "NO_SALES_FOUND", decodeError(t, rec).Code)

	rec = ts.post(t, "/api/v2/postings", map[string]any{
		"action":          "APPLY_POLICY",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
		"policy": map[string]any{
			"clearing_account": "1100",
			"accounts": map[string]string{
				string(postingdomain.CategoryServiceRevenue): "4000",
				string(postingdomain.CategoryProductRevenue): "4100",
				string(postingdomain.CategoryVATServices):    "2200",
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	applied := decodeData[postingResponse](t, rec)
	require.NotNil(t, applied.Policy)
	assert.NotZero(t, applied.Policy.ClearingAccount)

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	ts.sale(t, day.Add(9*time.Hour), 100, 5)
	ts.sale(t, day.Add(15*time.Hour), 200, 10)

	rec = ts.post(t, "/api/v2/postings", map[string]any{
		"action":          "SUMMARIZE",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
		"branch_id":       ts.branch.String(),
		"day":             "2024-06-10",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summarized := decodeData[postingResponse](t, rec)
	require.NotNil(t, summarized.Summary)
	assert.Equal(t, 2, summarized.Summary.TransactionCount)

	rec = postDaily()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	posted := decodeData[postingResponse](t, rec)
	require.NotNil(t, posted.Result)
	assert.Equal(t, int64(315), posted.Result.DebitTotal)
	assert.Equal(t, int64(315), posted.Result.CreditTotal)
	assert.Equal(t, postingdomain.JournalCode(ts.branch, day), posted.Result.TransactionCode)

	rec = postDaily()
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	payload := decodeError(t, rec)
	assert.Equal(t, "ALREADY_POSTED", payload.Code)
	require.NotNil(t, payload.Summary)
	assert.Equal(t, 2, payload.Summary.TransactionCount)
}

func TestPostingApplyPolicyRequiresBody(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.post(t, "/api/v2/postings", map[string]any{
		"action":          "APPLY_POLICY",
		"actor_user_id":   testActor.String(),
		"organization_id": ts.org.String(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "INVALID_POLICY", decodeError(t, rec).Code)
}

func TestOrganizationProvisionAndDeactivate(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.post(t, "/api/v2/organizations", map[string]any{
		"action":            "PROVISION",
		"actor_user_id":     testActor.String(),
		"organization_name": "Glow Salon",
		"organization_code": "glow",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	org := decodeData[schema.Organization](t, rec)
	require.NotZero(t, org.ID)

	rec = ts.post(t, "/api/v2/organizations", map[string]any{
		"action":            "PROVISION",
		"actor_user_id":     testActor.String(),
		"organization_name": "Glow Again",
		"organization_code": "glow",
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "DUPLICATE_ORGANIZATION_CODE", decodeError(t, rec).Code)

	rec = ts.post(t, "/api/v2/organizations", map[string]any{
		"action":          "DEACTIVATE",
		"actor_user_id":   testActor.String(),
		"organization_id": org.ID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, schema.OrganizationStatusInactive, decodeData[schema.Organization](t, rec).Status)
}

func TestValidateSmartCode(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.post(t, "/api/v2/smart-codes/validate", map[string]any{"smart_code": "hera.salon.crm.customer.profile.v1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeData[smartcode.Result](t, rec)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)

	rec = ts.post(t, "/api/v2/smart-codes/validate", map[string]any{"smart_code": customerCode})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeData[smartcode.Result](t, rec).Valid)
}

func TestMalformedBodyAndUnknownRoute(t *testing.T) {
	ts := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/entities", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)

	rec = ts.post(t, "/api/v2/ledgers", map[string]any{})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestAuthorizationByRole(t *testing.T) {
	ts := newTestServer(t, true)
	viewer := schematest.SeedEntity(t, ts.db, ts.node, ts.org, "USER", "Vic")
	grantRole(t, ts, viewer, authorization.RoleViewer)

	rec := ts.post(t, "/api/v2/entities", map[string]any{
		"action":          "CREATE",
		"actor_user_id":   viewer.String(),
		"organization_id": ts.org.String(),
		"entity": map[string]any{
			"entity_type": "customer",
			"entity_name": "Layla",
			"smart_code":  customerCode,
		},
	})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Code)

	rec = ts.post(t, "/api/v2/entities", map[string]any{
		"action":          "READ",
		"actor_user_id":   viewer.String(),
		"organization_id": ts.org.String(),
		"options":         map[string]any{"filters": map[string]any{"entity_type": "USER"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.post(t, "/api/v2/postings/daily", map[string]any{
		"actor_user_id":   viewer.String(),
		"organization_id": ts.org.String(),
		"branch_id":       ts.branch.String(),
		"day":             "2024-06-10",
	})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
}

func grantRole(t *testing.T, ts *testServer, actorID snowflake.ID, role string) {
	t.Helper()
	roleID := ts.node.Generate()
	require.NoError(t, ts.db.Exec(
		`INSERT INTO core_entities (id, organization_id, entity_type, entity_name, entity_code, smart_code, status, created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'HERA.UNIVERSAL.SECURITY.ROLE.DEFINE.V1', 'active', 1, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		roleID, ts.org, authorization.RoleEntityType, role, role,
	).Error)
	require.NoError(t, ts.db.Exec(
		`INSERT INTO core_relationships (id, organization_id, from_entity_id, to_entity_id, relationship_type, is_active, smart_code, created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'HAS_ROLE', true, 'HERA.UNIVERSAL.SECURITY.ROLE.ASSIGN.V1', 1, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		ts.node.Generate(), ts.org, actorID, roleID,
	).Error)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", invalidRequestError("bad"), http.StatusBadRequest, "INVALID_REQUEST"},
		{"wrapped sentinel", fmt.Errorf("load: %w", entitydomain.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"inactive org", fmt.Errorf("org: %w", errors.New("organization_inactive")), http.StatusNotFound, "ORGANIZATION_INACTIVE"},
		{"invalid prefix", transactiondomain.ErrInvalidCurrency, http.StatusBadRequest, "INVALID_CURRENCY"},
		{"posting error", &postingdomain.Error{Err: postingdomain.ErrNegativeNet}, http.StatusUnprocessableEntity, "NEGATIVE_NET_SALES"},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"context", context.DeadlineExceeded, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, payload.Code)
		})
	}
}

func TestMapErrorCarriesSummary(t *testing.T) {
	summary := &postingdomain.Summary{TransactionCount: 4, BusinessDate: "2024-06-10"}
	status, payload := mapError(fmt.Errorf("post: %w", &postingdomain.Error{Err: postingdomain.ErrAlreadyPosted, Summary: summary}))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, typeConflict, payload.Type)
	require.NotNil(t, payload.Summary)
	assert.Equal(t, 4, payload.Summary.TransactionCount)
}

func TestClassifyErrorForLogHidesInternals(t *testing.T) {
	kind, code := classifyErrorForLog(errors.New("pq: deadlock"))
	assert.Equal(t, typeInternal, kind)
	assert.Equal(t, "INTERNAL_ERROR", code)

	kind, code = classifyErrorForLog(transactiondomain.ErrUnbalancedJournal)
	assert.Equal(t, typeUnprocessed, kind)
	assert.Equal(t, "UNBALANCED_JOURNAL", code)
}
