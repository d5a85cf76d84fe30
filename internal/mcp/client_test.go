package mcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSSEResponse_SkipsOtherIDs(t *testing.T) {
	stream := strings.Join([]string{
		`event: message`,
		`data: {"jsonrpc":"2.0","method":"notifications/progress"}`,
		``,
		`data: {"jsonrpc":"2.0","id":"other","result":{}}`,
		``,
		`data: {"jsonrpc":"2.0","id":"want",`,
		`data: "result":{"ok":true}}`,
		``,
	}, "\n")

	resp, err := readSSEResponse(strings.NewReader(stream), "want")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result))

	_, err = readSSEResponse(strings.NewReader("data: {}\n\n"), "want")
	assert.Error(t, err)
}

func TestClient_RPCErrorAndSessionHeader(t *testing.T) {
	var mu sync.Mutex
	var sessionSeen []string
	srv := newFakeServer(t)
	wrapped := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sessionSeen = append(sessionSeen, r.Header.Get(sessionHeader))
		mu.Unlock()
		srv.Config.Handler.ServeHTTP(w, r)
	}))
	defer wrapped.Close()

	c := NewClient(wrapped.URL+"/mcp", wrapped.Client(), nil)
	ctx := context.Background()

	name, err := c.Initialize(ctx, "test", "1")
	require.NoError(t, err)
	assert.Equal(t, "fake", name)

	_, err = c.call(ctx, "resources/list", nil)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.Code)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sessionSeen, 3)
	assert.Equal(t, "", sessionSeen[0])
	assert.Equal(t, "sess-1", sessionSeen[2])
}

func TestClient_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil, nil).ListTools(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}
