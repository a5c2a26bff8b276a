package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientPostJSONSetsHeadersAndBody(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), "pulse-go/1.2.0")
	body, _ := json.Marshal(map[string]string{"hello": "world"})

	resp, err := c.PostJSON(context.Background(), server.URL, body, map[string]string{"Trace": "true"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.IsSuccess())
	assert.JSONEq(t, `{"success":true}`, string(resp.Body))
	assert.Equal(t, "req-1", resp.Headers.Get("X-Request-Id"))

	assert.JSONEq(t, `{"hello":"world"}`, string(gotBody))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "pulse-go/1.2.0", gotHeader.Get("User-Agent"))
	assert.Equal(t, "true", gotHeader.Get("Trace"))
}

func TestClientPostJSONReturnsErrorStatusesAsResponses(t *testing.T) {
	for _, status := range []int{400, 401, 408, 413, 429, 500, 503} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		c := NewClient(server.Client(), "")
		resp, err := c.PostJSON(context.Background(), server.URL, []byte("{}"), nil)
		require.NoError(t, err, "status %d must not be a transport error", status)
		assert.Equal(t, status, resp.StatusCode)
		assert.False(t, resp.IsSuccess())

		server.Close()
	}
}

func TestClientPostJSONTransportError(t *testing.T) {
	c := NewClient(&http.Client{Timeout: time.Second}, "")

	// Nothing listens on port 1.
	resp, err := c.PostJSON(context.Background(), "http://127.0.0.1:1/v1/batch", []byte("{}"), nil)
	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestClientPostJSONTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	c := NewClient(server.Client(), "")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.PostJSON(ctx, server.URL, []byte("{}"), nil)
	assert.Error(t, err, "timeout must surface as a transport error")
}

func TestClientNilHTTPClientFallsBack(t *testing.T) {
	assert.NotNil(t, NewClient(nil, ""))
}
