package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payin-backend/internal/domain"
	"payin-backend/internal/lock"
	"payin-backend/internal/repository"
	"payin-backend/internal/service"
)

type testAPI struct {
	router  chi.Router
	members service.MemberService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := repository.NewMemoryStore()
	evaluator := service.Evaluator{}
	members := service.MemberService{Store: store}
	capture := service.CaptureService{Store: store, Aggregator: service.Aggregator{Evaluator: evaluator}}
	prints := service.PrintService{Store: store, Limit: 3}
	promotions := service.PromotionService{Store: store}
	status := service.ActiveStatusService{Store: store}

	r := chi.NewRouter()
	HealthHandler{DB: store}.RegisterRoutes(r)
	MemberHandler{Members: members, Promotions: promotions, Status: status}.RegisterRoutes(r)
	SheetHandler{Capture: capture, Members: members, Prints: prints}.RegisterRoutes(r)
	SummaryHandler{Summaries: service.SummaryService{Store: store}, Prints: prints}.RegisterRoutes(r)
	RuleHandler{Rules: service.RuleService{Store: store, Evaluator: evaluator}, Status: status}.RegisterRoutes(r)
	return &testAPI{router: r, members: members}
}

// call sends body as JSON and returns the status and the decoded envelope.
func (a *testAPI) call(t *testing.T, method, path string, body any, header ...string) (int, apiResponse) {
	t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func (a *testAPI) member(t *testing.T, name string, g domain.Genealogy, managerID *int64) *domain.Member {
	t.Helper()
	m, err := a.members.Create(context.Background(), service.CreateMemberInput{Name: name, Genealogy: g, ManagerID: managerID})
	require.NoError(t, err)
	return m
}

func dataMap(t *testing.T, resp apiResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestCreateMember(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.call(t, http.MethodPost, "/members", map[string]any{"name": "Dana", "code": "D01", "genealogy": "distributor"})
	require.Equal(t, http.StatusCreated, code)
	d := dataMap(t, resp)
	assert.Equal(t, "Distributor", d["genealogyLabel"])
	id := int64(d["id"].(float64))
	assert.Equal(t, float64(id), d["relatedDistributorId"])

	code, resp = api.call(t, http.MethodPost, "/members", map[string]any{"name": "Cleo", "genealogy": "consultant"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, resp.Message, "manager_id")

	code, _ = api.call(t, http.MethodPost, "/members", map[string]any{"genealogy": "consultant"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, resp = api.call(t, http.MethodGet, fmt.Sprintf("/members/%d", id), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "D01", dataMap(t, resp)["code"])

	code, resp = api.call(t, http.MethodGet, "/members/999", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, http.StatusNotFound, resp.Error.Code)
}

func TestSheetLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	d := api.member(t, "D", domain.GenealogyDistributor, nil)
	m := api.member(t, "M", domain.GenealogyManager, &d.ID)
	c := api.member(t, "C", domain.GenealogyConsultant, &m.ID)

	code, resp := api.call(t, http.MethodPost, "/sheets", map[string]any{"managerId": m.ID, "period": "2025-03"})
	require.Equal(t, http.StatusOK, code)
	sheet := dataMap(t, resp)
	assert.Equal(t, "2025-03", sheet["period"])
	lines := sheet["lines"].([]any)
	require.Len(t, lines, 1)
	lineID := int64(lines[0].(map[string]any)["id"].(float64))
	base := fmt.Sprintf("/sheets/%d", int64(sheet["id"].(float64)))

	code, _ = api.call(t, http.MethodPost, base+"/capture", nil)
	assert.Equal(t, http.StatusConflict, code, "capture before register")

	code, _ = api.call(t, http.MethodPost, base+"/register", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = api.call(t, http.MethodPut, fmt.Sprintf("%s/lines/%d", base, lineID), map[string]any{"consultantId": c.ID, "bbSales": 120, "bbReturns": 20})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "100", dataMap(t, resp)["subTotal"])

	code, _ = api.call(t, http.MethodPut, fmt.Sprintf("%s/lines/%d", base, lineID), map[string]any{"bbSales": 5})
	assert.Equal(t, http.StatusUnprocessableEntity, code, "consultantId is required")

	code, resp = api.call(t, http.MethodPost, base+"/capture", nil, actorHeader, "clerk-7")
	require.Equal(t, http.StatusOK, code)
	captured := dataMap(t, resp)
	assert.Equal(t, "captured", captured["state"])
	assert.Equal(t, "clerk-7", captured["capturedBy"])

	code, resp = api.call(t, http.MethodGet, base+"/pages", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Data, 1)

	for i := 0; i < 3; i++ {
		code, _ = api.call(t, http.MethodPost, base+"/print", nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, _ = api.call(t, http.MethodPost, base+"/print", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)

	code, _ = api.call(t, http.MethodPost, base+"/timer/rewind", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = api.call(t, http.MethodGet, "/sheets/abc", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestRuleEndpoints(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.call(t, http.MethodPut, "/rules/consultant", map[string]any{"salesMonth": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, resp := api.call(t, http.MethodPut, "/rules/consultant", map[string]any{"salesMonth": 3, "ownSalesValue": "50", "excludedMonths": []int{12}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), dataMap(t, resp)["salesMonth"])

	code, _ = api.call(t, http.MethodPut, "/rules/consultant", map[string]any{"salesMonth": 3, "excludedMonths": []int{13}})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = api.call(t, http.MethodGet, "/rules/admiral", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = api.call(t, http.MethodGet, "/rules/manager", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = api.call(t, http.MethodPost, "/evaluate", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, code, "period is required")
	code, resp = api.call(t, http.MethodPost, "/active-status", map[string]any{"period": "2025-03"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), dataMap(t, resp)["updated"])
}

func TestHealth(t *testing.T) {
	r := chi.NewRouter()
	HealthHandler{DB: repository.NewMemoryStore()}.RegisterRoutes(r)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServiceErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: domain.Invalid("member", 1, "name", "is required"), want: http.StatusUnprocessableEntity},
		{name: "precondition", err: domain.Precondition("capture sheet", 1, "sheet is locked"), want: http.StatusConflict},
		{name: "lock contention", err: fmt.Errorf("sheet 4: %w", lock.ErrNotAcquired), want: http.StatusConflict},
		{name: "not found", err: fmt.Errorf("member 9: %w", repository.ErrNotFound), want: http.StatusNotFound},
		{name: "unexpected", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tc.err)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
