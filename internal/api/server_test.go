// ABOUTME: Tests for the responder HTTP API
// ABOUTME: Drives the real mux with httptest over a responder backed by MockStore

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-responder/internal/auth"
	"github.com/2389/coven-responder/internal/chatconfig"
	"github.com/2389/coven-responder/internal/responder"
	"github.com/2389/coven-responder/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func neverDraw() float64 { return 0.99 }

func firstIndex(int) int { return 0 }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, st *store.MockStore, verifier auth.TokenVerifier) *Server {
	t.Helper()
	core, err := responder.New(context.Background(), st,
		responder.WithRandom(neverDraw, firstIndex),
		responder.WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	return New(core, verifier, discardLogger())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var errResp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return errResp["error"]
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, store.NewMockStore(), nil)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
}

func TestRules_CreateListAndDispatch(t *testing.T) {
	srv := newTestServer(t, store.NewMockStore(), nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/chats/room1/rules", RuleRequest{Name: "beer", Pattern: "kalja", Text: "oispa kaljaa"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/chats/room1/rules", RuleRequest{Name: "wave", Pattern: "moi", Item: "mxc://example.org/wave"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/chats/room1/rules", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rules []RuleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rules))
	assert.Equal(t, []RuleResponse{
		{Name: "beer", Pattern: "kalja", ResponseKind: "literal", ResponseValue: "oispa kaljaa"},
		{Name: "wave", Pattern: "moi", ResponseKind: "item", ResponseValue: "mxc://example.org/wave"},
	}, rules)

	// Default probability 0.5 with a draw of 0.99 never fires
	rec = doJSON(t, h, http.MethodPost, "/api/chats/room1/dispatch", DispatchRequest{Text: "kalja"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/chats/room1/dispatch", DispatchRequest{Text: "moi, kalja?", ForceFire: true}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out DispatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, DispatchResponse{Text: "oispa kaljaa", Item: "mxc://example.org/wave"}, out)
}

func TestCreateRule_Errors(t *testing.T) {
	srv := newTestServer(t, store.NewMockStore(), nil)
	h := srv.Handler()

	require.Equal(t, http.StatusCreated,
		doJSON(t, h, http.MethodPost, "/api/chats/c/rules", RuleRequest{Name: "a", Pattern: "x", Text: "y"}, "").Code)

	tests := []struct {
		name    string
		req     RuleRequest
		status  int
		message string
	}{
		{"missing name", RuleRequest{Pattern: "x", Text: "y"}, http.StatusBadRequest, "name is required"},
		{"no response", RuleRequest{Name: "b", Pattern: "x"}, http.StatusBadRequest, "text or item is required"},
		{"both responses", RuleRequest{Name: "b", Pattern: "x", Text: "y", Item: "z"}, http.StatusBadRequest, "set only one of text and item"},
		{"bad pattern", RuleRequest{Name: "b", Pattern: "(", Text: "y"}, http.StatusBadRequest, ""},
		{"duplicate", RuleRequest{Name: "a", Pattern: "z", Text: "y"}, http.StatusConflict, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/chats/c/rules", tt.req, "")
			assert.Equal(t, tt.status, rec.Code)
			msg := decodeError(t, rec)
			if tt.message != "" {
				assert.Equal(t, tt.message, msg)
			} else {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	srv := newTestServer(t, store.NewMockStore(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chats/c/dispatch", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON body", decodeError(t, rec))
}

func TestItems_RecordAndGate(t *testing.T) {
	srv := newTestServer(t, store.NewMockStore(), nil)
	h := srv.Handler()

	post := func(req ItemRequest) ItemResponse {
		t.Helper()
		rec := doJSON(t, h, http.MethodPost, "/api/chats/c/items", req, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp ItemResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp
	}

	assert.Nil(t, post(ItemRequest{Category: "🍺", UniqueID: "a"}).Candidate, "first item has nothing to echo")

	resp := post(ItemRequest{Category: "🍺", UniqueID: "b", PayloadRef: "mxc://x/b"})
	require.NotNil(t, resp.Candidate)
	assert.Equal(t, store.ItemRecord{UniqueID: "a", PayloadRef: "a"}, *resp.Candidate)

	// Gated at the default probability with a high draw
	assert.Nil(t, post(ItemRequest{Category: "🍺", UniqueID: "c", Gate: true}).Candidate)

	always := 1.0
	rec := doJSON(t, h, http.MethodPut, "/api/chats/c/config", ConfigUpdate{FireProbability: &always}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp = post(ItemRequest{Category: "🍺", UniqueID: "d", Gate: true})
	require.NotNil(t, resp.Candidate)
	assert.Equal(t, "c", resp.Candidate.UniqueID)

	rec = doJSON(t, h, http.MethodPost, "/api/chats/c/items", ItemRequest{UniqueID: "x"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfig_GetAndUpdate(t *testing.T) {
	st := store.NewMockStore()
	srv := newTestServer(t, st, nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/chats/c/config", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg chatconfig.Config
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Equal(t, chatconfig.Config{ChatID: "c", FireProbability: 0.5, RecencyCapacity: 20}, cfg)

	p, n := 0.25, 3
	rec = doJSON(t, h, http.MethodPut, "/api/chats/c/config", ConfigUpdate{FireProbability: &p, RecencyCapacity: &n}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Equal(t, chatconfig.Config{ChatID: "c", FireProbability: 0.25, RecencyCapacity: 3}, cfg)

	settings, err := st.GetChatSettings(context.Background(), "c")
	require.NoError(t, err)
	require.NotNil(t, settings.FireProbability)
	assert.Equal(t, 0.25, *settings.FireProbability)
}

func TestConfig_Validation(t *testing.T) {
	srv := newTestServer(t, store.NewMockStore(), nil)
	h := srv.Handler()

	tooHigh, negative := 1.5, -1
	rec := doJSON(t, h, http.MethodPut, "/api/chats/c/config", ConfigUpdate{FireProbability: &tooHigh}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/chats/c/config", ConfigUpdate{RecencyCapacity: &negative}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageErrorIsHidden(t *testing.T) {
	st := store.NewMockStore()
	srv := newTestServer(t, st, nil)
	st.FailSaveSetting = errors.New("disk on fire")

	p := 0.1
	rec := doJSON(t, srv.Handler(), http.MethodPut, "/api/chats/c/config", ConfigUpdate{FireProbability: &p}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec))
}

func TestUpdateConfig_FailureLeavesBothFields(t *testing.T) {
	st := store.NewMockStore()
	srv := newTestServer(t, st, nil)
	h := srv.Handler()

	p, capacity := 0.1, 3
	st.FailSaveSetting = errors.New("disk on fire")
	rec := doJSON(t, h, http.MethodPut, "/api/chats/c/config", ConfigUpdate{FireProbability: &p, RecencyCapacity: &capacity}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, st.SettingSaves, "both fields go to storage together")

	st.FailSaveSetting = nil
	rec = doJSON(t, h, http.MethodGet, "/api/chats/c/config", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg chatconfig.Config
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Equal(t, 0.5, cfg.FireProbability)
	assert.Equal(t, 20, cfg.RecencyCapacity)

	rec = doJSON(t, h, http.MethodPut, "/api/chats/c/config", ConfigUpdate{FireProbability: &p, RecencyCapacity: &capacity}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Equal(t, 0.1, cfg.FireProbability)
	assert.Equal(t, 3, cfg.RecencyCapacity)
	assert.Equal(t, 2, st.SettingSaves)
}

func TestAuth(t *testing.T) {
	verifier, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	srv := newTestServer(t, store.NewMockStore(), verifier)
	h := srv.Handler()

	// Health stays open
	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/health", nil, "").Code)

	rec := doJSON(t, h, http.MethodGet, "/api/chats/room1/rules", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/chats/room1/rules", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	scoped, err := verifier.Generate("ops", []string{"room1"}, time.Hour)
	require.NoError(t, err)

	rec = doJSON(t, h, http.MethodGet, "/api/chats/room1/rules", nil, scoped)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/chats/room2/rules", nil, scoped)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	global, err := verifier.Generate("admin", nil, time.Hour)
	require.NoError(t, err)
	rec = doJSON(t, h, http.MethodGet, "/api/chats/room2/rules", nil, global)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	srv := newTestServer(t, store.NewMockStore(), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
