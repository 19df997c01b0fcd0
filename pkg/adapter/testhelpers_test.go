package adapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zen-systems/nexus/pkg/registry"
)

func mustResolve(t *testing.T, id string) registry.ModelDescriptor {
	t.Helper()
	d, err := registry.Default().Resolve(id)
	require.NoError(t, err)
	return d
}

func userRequest(model string, mode registry.Mode, text string) Request {
	return Request{
		Model:    model,
		Mode:     mode,
		Messages: []Message{{Role: RoleUser, Content: text}},
	}
}

// toMap round-trips an SDK param struct through JSON.
func toMap(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

// stubServer replies with a fixed status and body and counts hits.
func stubServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}
