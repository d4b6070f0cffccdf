package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrun/internal/app/server"
	"payrun/internal/domain/auth"
	"payrun/internal/platform/config"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type runBody struct {
	ID                int64  `json:"id"`
	Month             int    `json:"month"`
	Year              int    `json:"year"`
	Status            string `json:"status"`
	OverrideConfirmed bool   `json:"overrideConfirmed"`
}

type generateBody struct {
	Outcome  string   `json:"outcome"`
	Run      *runBody `json:"run"`
	Warnings []string `json:"warnings"`
	Summary  *struct {
		TotalEmployees int    `json:"totalEmployees"`
		TotalNet       string `json:"totalNet"`
	} `json:"summary"`
}

// fakeGateway accepts every payment except those to rejectMSISDN.
type fakeGateway struct {
	mu           sync.Mutex
	rejectMSISDN string
	references   []string
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reference string `json:"reference"`
		MSISDN    string `json:"msisdn"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	g.mu.Lock()
	g.references = append(g.references, req.Reference)
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if req.MSISDN == g.rejectMSISDN {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"status":"rejected","reference":"` + req.Reference + `","reason":"invalid wallet"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"accepted","reference":"` + req.Reference + `"}`))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Environment:            "test",
		StorageDriver:          config.StorageMemory,
		RunSeed:                true,
		JWTSecret:              "test-secret",
		DocumentsDir:           t.TempDir(),
		CompanyName:            "Test Payroll Co",
		Currency:               "KES",
		EmailFrom:              "payroll@test.local",
		GatewayTimeout:         2 * time.Second,
		EngineTimeout:          5 * time.Second,
		FraudVarianceThreshold: 0.25,
		FraudLookbackRuns:      3,
		MaxBodyBytes:           1048576,
		RateLimitPerMinute:     1000,
		MetricsEnabled:         true,
		JobQueueSize:           16,
	}
}

type testClient struct {
	t      *testing.T
	client *http.Client
	base   string
	token  string
}

func startApp(t *testing.T, cfg config.Config) (*server.App, *httptest.Server) {
	t.Helper()
	app, err := server.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	ts := httptest.NewServer(app.Router)
	t.Cleanup(ts.Close)
	return app, ts
}

func newClient(t *testing.T, ts *httptest.Server, secret, userID, role string) *testClient {
	t.Helper()
	token, err := auth.GenerateToken(secret, auth.Claims{UserID: userID, RoleName: role}, time.Hour)
	require.NoError(t, err)
	return &testClient{t: t, client: ts.Client(), base: ts.URL, token: token}
}

func (c *testClient) do(method, path string, body any, headers map[string]string) (*http.Response, envelope) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), string(env.Data))
	return out
}

func TestPayrollRunJourney(t *testing.T) {
	gw := &fakeGateway{rejectMSISDN: "254712000004"}
	gatewayServer := httptest.NewServer(gw)
	defer gatewayServer.Close()

	cfg := testConfig(t)
	cfg.GatewayBaseURL = gatewayServer.URL
	app, ts := startApp(t, cfg)
	admin := newClient(t, ts, cfg.JWTSecret, "admin-1", auth.RolePayrollAdmin)

	// June: first run, no history, commits directly.
	resp, env := admin.do(http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 6, "year": 2025}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	june := decodeData[generateBody](t, env)
	require.Equal(t, "committed", june.Outcome)
	require.NotNil(t, june.Run)
	require.NotNil(t, june.Summary)
	assert.Equal(t, 4, june.Summary.TotalEmployees)
	assert.Equal(t, "open", june.Run.Status)
	juneID := june.Run.ID

	resp, env = admin.do(http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 6, "year": 2025}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decodeData[generateBody](t, env)
	assert.Equal(t, "existing", again.Outcome)
	assert.Equal(t, juneID, again.Run.ID)

	// A one-off bonus inflates Lucy's June net so July looks like a drop.
	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/adjustments", juneID), map[string]any{
		"employeeId": 4,
		"name":       "Signing bonus",
		"type":       "earning",
		"amount":     "200000",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "%+v", env.Error)
	adjusted := decodeData[struct {
		Adjustment struct {
			ID int64 `json:"id"`
		} `json:"adjustment"`
		Entry struct {
			Net string `json:"net"`
		} `json:"entry"`
	}](t, env)
	assert.Equal(t, "271617.65", adjusted.Entry.Net)

	resp, env = admin.do(http.MethodGet, fmt.Sprintf("/api/v1/payroll/runs/%d/employees/4/adjustments", juneID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeData[[]json.RawMessage](t, env), 1)

	resp, env = admin.do(http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 7, "year": 2025}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decodeData[generateBody](t, env)
	require.Equal(t, "needs_override", pending.Outcome)
	assert.Nil(t, pending.Run)
	require.Len(t, pending.Warnings, 1)
	assert.Contains(t, pending.Warnings[0], "Lucy Achieng")

	resp, env = admin.do(http.MethodGet, "/api/v1/payroll/runs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Total-Count"))

	resp, env = admin.do(http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 7, "year": 2025, "overrideConfirmed": true}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	july := decodeData[generateBody](t, env)
	require.Equal(t, "committed", july.Outcome)
	assert.True(t, july.Run.OverrideConfirmed)

	// Lock June; a second lock reports the existing state.
	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/lock", juneID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	locked := decodeData[struct {
		Run           runBody `json:"run"`
		AlreadyLocked bool    `json:"alreadyLocked"`
	}](t, env)
	assert.Equal(t, "locked", locked.Run.Status)
	assert.False(t, locked.AlreadyLocked)

	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/lock", juneID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeData[struct {
		AlreadyLocked bool `json:"alreadyLocked"`
	}](t, env).AlreadyLocked)

	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/adjustments", juneID), map[string]any{
		"employeeId": 1,
		"name":       "Late overtime",
		"type":       "earning",
		"amount":     "5000",
	}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "run_locked", env.Error.Code)

	resp, env = admin.do(http.MethodDelete, fmt.Sprintf("/api/v1/payroll/adjustments/%d", adjusted.Adjustment.ID), nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "run_locked", env.Error.Code)

	resp, env = admin.do(http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 6, "year": 2025}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "run_locked", env.Error.Code)
	assert.Equal(t, "regular", env.Error.Details["runType"])

	// Documents.
	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/reports/runs/%d/documents", juneID), map[string]any{"kind": "register"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "%+v", env.Error)
	handle := decodeData[struct {
		ID          string `json:"id"`
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
		Size        int    `json:"size"`
	}](t, env)
	require.NotEmpty(t, handle.ID)
	assert.Positive(t, handle.Size)

	download, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/reports/documents/"+handle.ID+"/download", nil)
	require.NoError(t, err)
	download.Header.Set("Authorization", "Bearer "+admin.token)
	dlResp, err := ts.Client().Do(download)
	require.NoError(t, err)
	data, err := io.ReadAll(dlResp.Body)
	dlResp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, dlResp.StatusCode)
	assert.Equal(t, handle.ContentType, dlResp.Header.Get("Content-Type"))
	assert.Contains(t, dlResp.Header.Get("Content-Disposition"), handle.FileName)
	assert.Len(t, data, handle.Size)

	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/reports/runs/%d/documents", juneID), map[string]any{"kind": "tax_card"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", env.Error.Code)

	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/reports/runs/%d/documents", juneID), map[string]any{"kind": "payslip"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", env.Error.Code)

	// Disbursement: Lucy's wallet is rejected, everyone else is paid.
	headers := map[string]string{"Idempotency-Key": "june-disburse-1"}
	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/disburse", juneID), nil, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%+v", env.Error)
	batch := decodeData[struct {
		ID          string `json:"id"`
		Submitted   int    `json:"submitted"`
		Accepted    int    `json:"accepted"`
		Rejected    int    `json:"rejected"`
		Unconfirmed int    `json:"unconfirmed"`
		RetryUnsafe bool   `json:"retryUnsafe"`
		Recorded    bool   `json:"batchRecorded"`
	}](t, env)
	assert.Equal(t, 4, batch.Submitted)
	assert.Equal(t, 3, batch.Accepted)
	assert.Equal(t, 1, batch.Rejected)
	assert.Zero(t, batch.Unconfirmed)
	assert.False(t, batch.RetryUnsafe)
	assert.True(t, batch.Recorded)

	// Replaying the key returns the stored batch without touching the gateway.
	gw.mu.Lock()
	submitted := len(gw.references)
	gw.mu.Unlock()
	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/disburse", juneID), nil, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	replayed := decodeData[struct {
		ID string `json:"id"`
	}](t, env)
	assert.Equal(t, batch.ID, replayed.ID)
	gw.mu.Lock()
	assert.Len(t, gw.references, submitted)
	gw.mu.Unlock()

	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/disburse", july.Run.ID), nil, headers)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "idempotency_conflict", env.Error.Code)

	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/mark-paid", juneID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	marked := decodeData[struct {
		MarkedPaid int `json:"markedPaid"`
	}](t, env)
	assert.Equal(t, 1, marked.MarkedPaid)

	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/disburse", juneID), nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "nothing_to_disburse", env.Error.Code)

	resp, env = admin.do(http.MethodGet, fmt.Sprintf("/api/v1/payroll/runs/%d/summary", juneID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeData[struct {
		PaidEntries   int `json:"paidEntries"`
		UnpaidEntries int `json:"unpaidEntries"`
	}](t, env)
	assert.Equal(t, 4, summary.PaidEntries)
	assert.Zero(t, summary.UnpaidEntries)

	// Delivery and tax cards work off locked runs.
	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/reports/runs/%d/payslips/deliver", july.Run.ID), nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", env.Error.Code)

	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/reports/runs/%d/payslips/deliver", juneID), nil, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "%+v", env.Error)
	app.Jobs.Wait()

	resp, env = admin.do(http.MethodGet, "/api/v1/reports/jobs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jobRuns := decodeData[[]struct {
		JobType string `json:"jobType"`
		Status  string `json:"status"`
	}](t, env)
	require.NotEmpty(t, jobRuns)
	assert.Equal(t, "payslip_delivery", jobRuns[0].JobType)
	assert.Equal(t, "completed", jobRuns[0].Status)

	resp, env = admin.do(http.MethodPost, "/api/v1/reports/tax-cards", map[string]any{"employeeId": 1, "year": 2025}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%+v", env.Error)

	resp, env = admin.do(http.MethodPost, "/api/v1/reports/tax-cards", map[string]any{"employeeId": 999, "year": 2025}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, env = admin.do(http.MethodGet, "/api/v1/notifications/deliveries?kind=payslip", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "4", resp.Header.Get("X-Total-Count"))

	resp, env = admin.do(http.MethodGet, "/api/v1/notifications/deliveries?kind=tax_card&employeeId=1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	taxCards := decodeData[[]struct {
		Recipient string `json:"recipient"`
		Status    string `json:"status"`
	}](t, env)
	require.Len(t, taxCards, 1)
	assert.Equal(t, "john.k@sheriaflow.co.ke", taxCards[0].Recipient)
	assert.Equal(t, "sent", taxCards[0].Status)

	// Dashboard compares the two regular runs.
	resp, env = admin.do(http.MethodGet, "/api/v1/reports/stats", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decodeData[struct {
		ActiveEmployees int    `json:"activeEmployees"`
		PayrollTrend    string `json:"payrollTrend"`
		Currency        string `json:"currency"`
		LastPayrollRun  *struct {
			ID int64 `json:"id"`
		} `json:"lastPayrollRun"`
	}](t, env)
	assert.Equal(t, 4, stats.ActiveEmployees)
	assert.Equal(t, "KES", stats.Currency)
	require.NotNil(t, stats.LastPayrollRun)
	assert.Equal(t, july.Run.ID, stats.LastPayrollRun.ID)
	assert.True(t, strings.HasPrefix(stats.PayrollTrend, "-"), stats.PayrollTrend)

	// Every mutation above left an audit trail.
	resp, env = admin.do(http.MethodGet, "/api/v1/audit/events?action=payroll.run.lock", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Total-Count"))
	events := decodeData[[]struct {
		ActorID  string `json:"actorId"`
		EntityID string `json:"entityId"`
	}](t, env)
	require.Len(t, events, 1)
	assert.Equal(t, "admin-1", events[0].ActorID)
	assert.Equal(t, fmt.Sprint(juneID), events[0].EntityID)

	resp, _ = admin.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDisburseWithoutGateway(t *testing.T) {
	cfg := testConfig(t)
	_, ts := startApp(t, cfg)
	admin := newClient(t, ts, cfg.JWTSecret, "admin-1", auth.RolePayrollAdmin)

	resp, env := admin.do(http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 1, "year": 2026}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	run := decodeData[generateBody](t, env).Run

	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/disburse", run.ID), nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "gateway_not_configured", env.Error.Code)

	// Nothing was claimed, so the entries are still unpaid.
	resp, env = admin.do(http.MethodGet, fmt.Sprintf("/api/v1/payroll/runs/%d/summary", run.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, decodeData[struct {
		UnpaidEntries int `json:"unpaidEntries"`
	}](t, env).UnpaidEntries)
}

func TestUnknownGatewayOutcomeIsRetryUnsafe(t *testing.T) {
	gatewayServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"status":"error"}`))
	}))
	defer gatewayServer.Close()

	cfg := testConfig(t)
	cfg.GatewayBaseURL = gatewayServer.URL
	_, ts := startApp(t, cfg)
	admin := newClient(t, ts, cfg.JWTSecret, "admin-1", auth.RolePayrollAdmin)

	resp, env := admin.do(http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 2, "year": 2026}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	run := decodeData[generateBody](t, env).Run

	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/disburse", run.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%+v", env.Error)
	batch := decodeData[struct {
		Unconfirmed int  `json:"unconfirmed"`
		RetryUnsafe bool `json:"retryUnsafe"`
	}](t, env)
	assert.Equal(t, 4, batch.Unconfirmed)
	assert.True(t, batch.RetryUnsafe)

	// Unconfirmed entries are not resubmitted automatically.
	resp, env = admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/disburse", run.ID), nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "nothing_to_disburse", env.Error.Code)
}

func TestAccessControl(t *testing.T) {
	cfg := testConfig(t)
	_, ts := startApp(t, cfg)
	viewer := newClient(t, ts, cfg.JWTSecret, "viewer-1", auth.RolePayrollViewer)
	anonymous := &testClient{t: t, client: ts.Client(), base: ts.URL}
	forged := newClient(t, ts, "some-other-secret", "admin-1", auth.RolePayrollAdmin)

	resp, env := anonymous.do(http.MethodGet, "/api/v1/payroll/runs", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", env.Error.Code)

	resp, _ = forged.do(http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 3, "year": 2026}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = viewer.do(http.MethodGet, "/api/v1/payroll/runs", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = viewer.do(http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 3, "year": 2026}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", env.Error.Code)

	resp, _ = viewer.do(http.MethodPost, "/api/v1/payroll/runs/1/disburse", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = viewer.do(http.MethodGet, "/api/v1/audit/events", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = anonymous.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = anonymous.do(http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestValidation(t *testing.T) {
	cfg := testConfig(t)
	_, ts := startApp(t, cfg)
	admin := newClient(t, ts, cfg.JWTSecret, "admin-1", auth.RolePayrollAdmin)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"month out of range", http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 13, "year": 2025}, http.StatusBadRequest, "validation_error"},
		{"unknown run type", http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 1, "year": 2025, "runType": "bonus"}, http.StatusBadRequest, "validation_error"},
		{"unknown field", http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{"month": 1, "year": 2025, "tenant": 1}, http.StatusBadRequest, "invalid_payload"},
		{"bad run id", http.MethodGet, "/api/v1/payroll/runs/abc", nil, http.StatusBadRequest, "invalid_id"},
		{"missing run", http.MethodGet, "/api/v1/payroll/runs/999", nil, http.StatusNotFound, "not_found"},
		{"missing document", http.MethodGet, "/api/v1/reports/documents/nope/download", nil, http.StatusNotFound, "not_found"},
		{"tax card without employee", http.MethodPost, "/api/v1/reports/tax-cards", map[string]any{"year": 2025}, http.StatusBadRequest, "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, env := admin.do(tc.method, tc.path, tc.body, nil)
			require.Equal(t, tc.status, resp.StatusCode)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}

func TestPostgresJourney(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := testConfig(t)
	cfg.StorageDriver = config.StoragePostgres
	cfg.DatabaseURL = dbURL
	cfg.MigrationsDir = "../../../../migrations"
	cfg.RunMigrations = true
	cfg.DataEncryptionKey = "0123456789abcdef0123456789abcdef"
	_, ts := startApp(t, cfg)
	admin := newClient(t, ts, cfg.JWTSecret, "admin-1", auth.RolePayrollAdmin)

	// The database may hold runs from earlier passes; find a free off-cycle period.
	var run *runBody
	seed := time.Now().UnixNano()
	for attempt := int64(0); attempt < 50 && run == nil; attempt++ {
		slot := (seed + attempt) % 840
		resp, env := admin.do(http.MethodPost, "/api/v1/payroll/runs/generate", map[string]any{
			"month":   int(slot%12) + 1,
			"year":    2026 + int(slot/12),
			"runType": "off_cycle",
		}, nil)
		if resp.StatusCode == http.StatusCreated {
			run = decodeData[generateBody](t, env).Run
		}
	}
	require.NotNil(t, run, "no free period found")

	resp, _ := admin.do(http.MethodPost, fmt.Sprintf("/api/v1/payroll/runs/%d/lock", run.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := admin.do(http.MethodGet, "/api/v1/audit/events?entityType=payroll_run&entityId="+fmt.Sprint(run.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeData[[]json.RawMessage](t, env), 2)

	resp, _ = admin.do(http.MethodGet, "/api/v1/reports/jobs", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
