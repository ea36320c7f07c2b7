package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault-api/internal/cache"
	"cardvault-api/internal/events"
	"cardvault-api/internal/handler"
	"cardvault-api/internal/middleware"
	"cardvault-api/internal/repository"
	"cardvault-api/internal/service"
	"cardvault-api/internal/store"
)

const testAPIKey = "test-key"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.OpenLevelStore("")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mem := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { mem.Close() })

	opts := service.DefaultOptions()
	opts.BaseDelay = time.Millisecond
	svc := service.New(repository.New(st), cache.NewReadThrough(mem, zerolog.Nop()), events.Nop{}, opts, zerolog.Nop())

	r := New(Config{
		Logger:             zerolog.Nop(),
		Handler:            handler.New(st, "test"),
		InventoryHandler:   handler.NewInventoryHandler(svc.Inventory, svc.Marketplace),
		MarketplaceHandler: handler.NewMarketplaceHandler(svc),
		TransferHandler:    handler.NewTransferHandler(svc.Transfer),
		AdminHandler:       handler.NewAdminHandler(st, "level", mem, nil, svc.Pricing),
		AuthMiddleware:     middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: []string{testAPIKey}}),
		Metrics:            true,
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv}
}

func (s *testServer) do(method, path string, body interface{}, headers map[string]string) (*http.Response, envelope) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp, env
}

func (s *testServer) post(path string, body interface{}) (*http.Response, envelope) {
	return s.do(http.MethodPost, path, body, map[string]string{"X-API-Key": testAPIKey})
}

func TestRouter_PublicHealth(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/ready", "/api/status"} {
		resp, env := s.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.True(t, env.Success, path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	}

	resp, err := http.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_MutationsRequireAPIKey(t *testing.T) {
	s := newTestServer(t)

	resp, env := s.do(http.MethodPost, "/marketplace/list", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	resp, _ = s.do(http.MethodPost, "/marketplace/list", map[string]interface{}{}, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/admin/stats", nil, map[string]string{"Authorization": "Bearer " + testAPIKey})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_InventoryListBuyFlow(t *testing.T) {
	s := newTestServer(t)

	resp, env := s.post("/user/inventory/modify", map[string]interface{}{
		"userId": "seller",
		"operations": []map[string]interface{}{
			{"type": "addCard", "card": map[string]interface{}{"cardId": "c1", "cardName": "Dragon"}},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var inv struct {
		UserID  string `json:"userId"`
		Version int64  `json:"version"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &inv))
	assert.Equal(t, "seller", inv.UserID)
	assert.Equal(t, int64(1), inv.Version)

	resp, _ = s.post("/marketplace/list", map[string]interface{}{
		"type": "card", "userId": "seller", "username": "Seller", "cardId": "c1", "cost": 100,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = s.post("/marketplace/list", map[string]interface{}{
		"type": "card", "userId": "seller", "username": "Seller", "cardId": "c1", "cost": 100,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, env.Success)

	resp, env = s.do(http.MethodGet, "/marketplace/listings/seller", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listings []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &listings))
	require.Len(t, listings, 1)
	assert.Equal(t, "card", listings[0]["type"])

	resp, env = s.post("/user/heartbeat", map[string]interface{}{"userId": "seller"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = s.do(http.MethodGet, "/marketplace/find-sellers?itemType=card&itemName=Dragon", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found service.FindSellersResult
	require.NoError(t, json.Unmarshal(env.Data, &found))
	require.Len(t, found.Sellers, 1)

	resp, _ = s.post("/marketplace/buy", map[string]interface{}{
		"type": "card", "buyerId": "buyer", "cardId": "c1", "expectedCost": 90,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, env = s.post("/marketplace/buy", map[string]interface{}{
		"type": "card", "buyerId": "buyer", "cardId": "c1", "expectedCost": 100,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bought struct {
		Rap float64 `json:"rap"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bought))
	assert.Equal(t, 100.0, bought.Rap)

	resp, env = s.do(http.MethodGet, "/user/inventory/buyer", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buyer struct {
		Cards []struct {
			CardID string `json:"cardId"`
		} `json:"cards"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &buyer))
	require.Len(t, buyer.Cards, 1)
	assert.Equal(t, "c1", buyer.Cards[0].CardID)

	resp, env = s.do(http.MethodGet, "/marketplace/history", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history struct {
		Items []struct {
			ItemName string  `json:"itemName"`
			Rap      float64 `json:"rap"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history.Items, 1)
	assert.Equal(t, "Dragon", history.Items[0].ItemName)
}

func TestRouter_UnlistForbiddenForOtherUser(t *testing.T) {
	s := newTestServer(t)

	s.post("/user/inventory/modify", map[string]interface{}{
		"userId": "owner",
		"operations": []map[string]interface{}{
			{"type": "addCard", "card": map[string]interface{}{"cardId": "c9", "cardName": "Golem"}},
		},
	})
	resp, _ := s.post("/marketplace/list", map[string]interface{}{
		"type": "card", "userId": "owner", "username": "Owner", "cardId": "c9", "cost": 5,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := s.post("/marketplace/unlist", map[string]interface{}{"type": "card", "userId": "thief", "cardId": "c9"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	resp, _ = s.post("/marketplace/unlist", map[string]interface{}{"type": "card", "userId": "owner", "cardId": "c9"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_TransferIdempotency(t *testing.T) {
	s := newTestServer(t)

	s.post("/user/inventory/modify", map[string]interface{}{
		"userId": "A",
		"operations": []map[string]interface{}{
			{"type": "addCard", "card": map[string]interface{}{"cardId": "X", "cardName": "Dragon"}},
		},
	})

	body := map[string]interface{}{
		"transfers": []map[string]interface{}{{"fromUserId": "A", "toUserId": "B", "cards": []string{"X"}}},
	}

	resp, _ := s.post("/transfer", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing Idempotency-Key")

	headers := map[string]string{"X-API-Key": testAPIKey, handler.IdempotencyKeyHeader: "transfer-1"}
	resp, first := s.do(http.MethodPost, "/transfer", body, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(handler.ReplayedHeader))

	resp, second := s.do(http.MethodPost, "/transfer", body, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(handler.ReplayedHeader))
	assert.JSONEq(t, string(first.Data), string(second.Data))
}

func TestRouter_BackfillAdmin(t *testing.T) {
	s := newTestServer(t)

	resp, env := s.post("/api/admin/backfill", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res service.BackfillResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 0, res.Items)
	assert.NotEmpty(t, res.Date)
}
