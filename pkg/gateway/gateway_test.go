package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/sentineld/pkg/audit"
	"github.com/sentineld/sentineld/pkg/breaker"
	"github.com/sentineld/sentineld/pkg/events"
	"github.com/sentineld/sentineld/pkg/healing"
	"github.com/sentineld/sentineld/pkg/health"
	"github.com/sentineld/sentineld/pkg/orchestrator"
	"github.com/sentineld/sentineld/pkg/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	st := store.NewMemory()
	eventBus := events.New()
	ledger := audit.New(st)
	breakers := breaker.New(breaker.DefaultConfig())
	probes := health.NewSet()
	supervisor := healing.New(probes, breakers, nil, eventBus, nil)
	orch := orchestrator.New(nil, orchestrator.DefaultRouter(), eventBus)

	return New(Deps{
		Orchestrator: orch,
		Scheduler:    nil,
		Healing:      supervisor,
		Breakers:     breakers,
		Ledger:       ledger,
		Store:        st,
		Events:       eventBus,
		Secret:       "test-secret",
	})
}

func TestBearerGateRejectsMissingSecret(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/state:request", bytes.NewBufferString(`{"query":"breakers"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerGateAcceptsValidSecret(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/state:request", bytes.NewBufferString(`{"query":"breakers"}`))
	req.Header.Set("Authorization", "Bearer test-secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthExemptFromBearerGate(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStateRequestAuditVerify(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/state:request", bytes.NewBufferString(`{"query":"audit-verify"}`))
	req.Header.Set("Authorization", "Bearer test-secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Contains(t, result, "Valid")
}

func TestGatewayCommandUnknownSubchannelIsBadRequest(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/gateway:command", bytes.NewBufferString(`{"subchannel":"not-a-real-one"}`))
	req.Header.Set("Authorization", "Bearer test-secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemoryStatsWithoutConsolidatorIsUnavailable(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/gateway:command", bytes.NewBufferString(`{"subchannel":"memory:stats"}`))
	req.Header.Set("Authorization", "Bearer test-secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
