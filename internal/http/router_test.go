package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/auth"
	"github.com/chioma/settlement/internal/config"
	"github.com/chioma/settlement/internal/custody"
	"github.com/chioma/settlement/internal/events"
	"github.com/chioma/settlement/internal/http/handlers"
	"github.com/chioma/settlement/internal/services"
	"github.com/chioma/settlement/internal/store"
	"github.com/chioma/settlement/internal/ton"
)

const (
	jwtSecret = "test-secret"
	admin     = "0:aa"
	depositor = "0:dd"
	benef     = "0:bb"
	arbiter   = "0:cc"
)

type noNonces struct{}

func (noNonces) Issue(context.Context, time.Duration) (string, error) { return "n", nil }
func (noNonces) Consume(context.Context, string) error                { return auth.ErrUnknownNonce }

type testAPI struct {
	app    *fiber.App
	ledger *custody.Ledger
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := zap.NewNop()
	ledger := custody.NewLedger()
	st := store.NewMemory(store.Options{DefaultTTL: time.Hour})

	engine, err := services.NewEngine(st, ledger, events.Nop{}, nil, services.Settings{
		RecordTTL:      time.Hour,
		PaymentPeriod:  30 * 24 * time.Hour,
		PaymentGrace:   5 * 24 * time.Hour,
		CustodyAccount: "custody",
	}, log)
	require.NoError(t, err)

	cfg := &config.Config{JWTSecret: jwtSecret}
	app := fiber.New()
	SetupRouter(app, cfg, log, nil, Handlers{
		Auth:      handlers.NewAuthHandler(services.NewAuthService(noNonces{}, ton.NewVerifier(nil), "testnet", jwtSecret, time.Hour, log), log),
		Protocol:  handlers.NewProtocolHandler(services.NewProtocolService(engine), log),
		Escrow:    handlers.NewEscrowHandler(services.NewEscrowService(engine), log),
		Agreement: handlers.NewAgreementHandler(services.NewAgreementService(engine), log),
		Property:  handlers.NewPropertyHandler(services.NewPropertyService(engine), log),
		WSHub:     handlers.NewWSHub(nil, log),
	})
	return &testAPI{app: app, ledger: ledger}
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

func (a *testAPI) do(t *testing.T, method, path, caller string, body any) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		token, err := auth.GenerateJWT(jwtSecret, caller, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &env)
	return resp.StatusCode, env
}

func TestEscrowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.ledger.Mint("USDC", depositor, 1000)

	status, env := api.do(t, "POST", "/api/v1/escrows", depositor, map[string]any{
		"beneficiary": benef, "arbiter": arbiter, "amount": 1000, "token": "USDC",
	})
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "not_initialized", env.Code)

	status, _ = api.do(t, "POST", "/api/v1/protocol/initialize", admin, map[string]any{"fee_bps": 250, "fee_collector": "0:ff"})
	require.Equal(t, fiber.StatusCreated, status)
	status, env = api.do(t, "POST", "/api/v1/protocol/initialize", admin, map[string]any{"fee_bps": 250, "fee_collector": "0:ff"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "already_initialized", env.Code)

	status, env = api.do(t, "POST", "/api/v1/escrows", depositor, map[string]any{
		"beneficiary": benef, "arbiter": arbiter, "amount": 1000, "token": "USDC",
	})
	require.Equal(t, fiber.StatusCreated, status)
	var escrow struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &escrow))
	assert.Equal(t, "created", escrow.Status)
	assert.Len(t, escrow.ID, 64)

	base := "/api/v1/escrows/" + escrow.ID
	status, _ = api.do(t, "POST", base+"/fund", depositor, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, env = api.do(t, "POST", base+"/release", depositor, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "not_authorized", env.Code)

	status, env = api.do(t, "POST", base+"/release", benef, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &escrow))
	assert.Equal(t, "released", escrow.Status)
	assert.Equal(t, int64(1000), api.ledger.Balance("USDC", benef))

	status, env = api.do(t, "GET", base, "", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &escrow))
	assert.Equal(t, "released", escrow.Status)
}

func TestRequestValidation(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.do(t, "POST", "/api/v1/escrows", "", map[string]any{})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, env := api.do(t, "GET", "/api/v1/escrows/not-hex", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "bad_request", env.Code)

	status, _ = api.do(t, "GET", "/api/v1/agreements/lease-1/payments/x", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, env = api.do(t, "GET", "/api/v1/agreements/missing", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Code)

	status, _ = api.do(t, "POST", "/api/v1/auth/ton-proof", "", map[string]any{"address": "0:aa"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestVersionEndpoint(t *testing.T) {
	api := newTestAPI(t)

	resp, err := api.app.Test(httptest.NewRequest("GET", "/version", nil))
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, services.Version, body["version"])
}
