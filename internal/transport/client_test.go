package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_NormalizesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "7")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{Timeout: time.Second}, nil)
	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, resp.Status)
	assert.Equal(t, "7", resp.Header("X-RateLimit-Remaining"))
	assert.Equal(t, "short and stout", string(resp.Body))
	assert.Greater(t, resp.Duration, time.Duration(0))
	assert.False(t, resp.ReceivedAt.IsZero())
}

func TestClient_ResolvesAgainstBaseURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL + "/"}, nil)

	_, err := client.Get(context.Background(), "api/items")
	require.NoError(t, err)
	assert.Equal(t, "/api/items", gotPath)

	// Absolute URLs bypass the base.
	_, err = client.Get(context.Background(), srv.URL+"/absolute")
	require.NoError(t, err)
	assert.Equal(t, "/absolute", gotPath)
}

func TestClient_PostSendsBody(t *testing.T) {
	var gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{}, nil)
	resp, err := client.Post(context.Background(), srv.URL, []byte(`{"q":1}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.JSONEq(t, `{"q":1}`, string(gotBody))
}

func TestClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.Do(ctx, Request{URL: srv.URL})
	assert.Error(t, err)
}

func TestResponse_HeaderNilSafe(t *testing.T) {
	var resp *Response
	assert.Empty(t, resp.Header("Anything"))

	resp = &Response{}
	assert.Empty(t, resp.Header("Anything"))
}
