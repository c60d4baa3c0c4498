package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/experience"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/tracker"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/catalog"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/memory"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/sse"
)

const wallet = "GTESTWALLET"

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	hub := sse.NewHub(zerolog.Nop())
	t.Cleanup(hub.Stop)
	engine := experience.New(experience.Deps{
		Catalog:  cat,
		Accounts: memory.NewAccountRepository(),
		History:  memory.NewHistoryRepository(),
		Notifier: hub,
		Policy:   tracker.ManualPolicy{},
		Logger:   zerolog.Nop(),
	})
	return NewServer(engine, hub, zerolog.Nop()).Router()
}

func do(t *testing.T, h http.Handler, method, path, walletID string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if walletID != "" {
		req.Header.Set(WalletHeader, walletID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestCatalog(t *testing.T) {
	h := newTestServer(t)
	rec, body := do(t, h, http.MethodGet, "/v1/catalog", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["demos"], 4)
	assert.NotEmpty(t, body["badges"])
	assert.NotEmpty(t, body["gating"])
}

func TestWalletRequired(t *testing.T) {
	h := newTestServer(t)
	rec, body := do(t, h, http.MethodGet, "/v1/account", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "WALLET_REQUIRED", body["error"])
}

func TestSessionFlow(t *testing.T) {
	h := newTestServer(t)

	rec, sess := do(t, h, http.MethodPost, "/v1/sessions", wallet, map[string]string{"demoId": "hello-milestone"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sessionPath := "/v1/sessions/" + sess["sessionId"].(string)

	rec, body := do(t, h, http.MethodPost, sessionPath+"/steps/fund-escrow/invoke", wallet, nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "PRECONDITION_FAILED", body["error"])

	rec, _ = do(t, h, http.MethodGet, sessionPath, "GSOMEONEELSE", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	steps := []string{"initialize-escrow", "fund-escrow", "complete-milestone", "approve-milestone", "release-funds"}
	var lastTx string
	for _, step := range steps {
		rec, txRec := do(t, h, http.MethodPost, sessionPath+"/steps/"+step+"/invoke", wallet, nil)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		lastTx = txRec["transactionId"].(string)
		assert.Equal(t, "PENDING", txRec["status"])

		rec, confirmed := do(t, h, http.MethodPost, "/v1/transactions/"+lastTx+"/confirm", wallet, map[string]string{"status": "success"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "SUCCESS", confirmed["status"])
	}

	rec, body = do(t, h, http.MethodPost, "/v1/transactions/"+lastTx+"/confirm", wallet, map[string]string{"status": "FAILED"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["noop"])

	rec, body = do(t, h, http.MethodGet, "/v1/demos/hello-milestone/completed", wallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["completed"])

	rec, body = do(t, h, http.MethodGet, "/v1/badges/escrow-expert", wallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["held"])

	rec, body = do(t, h, http.MethodGet, "/v1/account", wallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, wallet, body["walletId"])
	assert.Greater(t, body["totalPoints"].(float64), 0.0)

	rec, body = do(t, h, http.MethodGet, "/v1/account/history?limit=10", wallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["entries"])
	assert.Equal(t, 10.0, body["limit"])
}

func TestFailedTransactionCarriesError(t *testing.T) {
	h := newTestServer(t)
	rec, sess := do(t, h, http.MethodPost, "/v1/sessions", wallet, map[string]string{"demoId": "hello-milestone"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sessionPath := "/v1/sessions/" + sess["sessionId"].(string)

	rec, txRec := do(t, h, http.MethodPost, sessionPath+"/steps/initialize-escrow/invoke", wallet, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	txPath := "/v1/transactions/" + txRec["transactionId"].(string)
	_, hasErr := txRec["error"]
	assert.False(t, hasErr)

	rec, body := do(t, h, http.MethodPost, txPath+"/confirm", wallet, map[string]string{"status": "failed", "message": "insufficient balance"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "FAILED", body["status"])
	assert.Contains(t, body["error"], "insufficient balance")

	rec, body = do(t, h, http.MethodGet, txPath, wallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["error"], "insufficient balance")
	assert.Equal(t, "insufficient balance", body["message"])
}

func TestClaimBlocked(t *testing.T) {
	h := newTestServer(t)
	rec, body := do(t, h, http.MethodPost, "/v1/badges/composite/claim", wallet, nil)
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Len(t, body["blockers"], 3)
}

func TestClapTwiceIsNoop(t *testing.T) {
	h := newTestServer(t)
	rec, body := do(t, h, http.MethodPost, "/v1/demos/hello-milestone/clap", wallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["noop"])

	rec, body = do(t, h, http.MethodPost, "/v1/demos/hello-milestone/clap", wallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["noop"])
}

func TestNotFoundAndBadInput(t *testing.T) {
	h := newTestServer(t)

	rec, _ := do(t, h, http.MethodGet, "/v1/sessions/00000000-0000-0000-0000-000000000001", wallet, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/v1/sessions/not-a-uuid", wallet, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/sessions", wallet, map[string]string{"demoId": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/sessions", wallet, map[string]string{"demo": "hello-milestone"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/demos/hello-milestone/complete", wallet, map[string]int{"score": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteDemoScore(t *testing.T) {
	tests := []struct {
		name   string
		wallet string
		body   interface{}
		points float64
	}{
		{"no score", "GSCORENONE", nil, 85},
		{"explicit zero", "GSCOREZERO", map[string]int{"score": 0}, 50},
		{"above hundred", "GSCOREHIGH", map[string]int{"score": 150}, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t)
			rec, body := do(t, h, http.MethodPost, "/v1/demos/hello-milestone/complete", tt.wallet, tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.points, body["pointsEarned"])
		})
	}
}

func TestDisputeBoardNeedsFunding(t *testing.T) {
	h := newTestServer(t)
	rec, sess := do(t, h, http.MethodPost, "/v1/sessions", wallet, map[string]string{"demoId": "dispute-resolution"})
	require.Equal(t, http.StatusCreated, rec.Code)
	sessionPath := "/v1/sessions/" + sess["sessionId"].(string)

	rec, _ = do(t, h, http.MethodPost, sessionPath+"/milestones/design/complete", wallet, map[string]string{"role": "worker"})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec, _ = do(t, h, http.MethodPost, sessionPath+"/milestones/design/complete", wallet, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
