package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_TrimsBaseURL(t *testing.T) {
	c := New(Options{BaseURL: "http://example.test///"})
	assert.Equal(t, "http://example.test", c.BaseURL())
}

func TestWithToken_DoesNotMutateOriginal(t *testing.T) {
	var got []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, domain.Plans{})
	}))
	authed := c.WithToken("abc")

	_, err := authed.Plans(context.Background())
	require.NoError(t, err)
	_, err = c.Plans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer abc", ""}, got)
}

func TestRequestHeaders(t *testing.T) {
	var gotAuth, gotUA, gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		writeJSON(w, http.StatusOK, []domain.Agent{})
	}))

	_, err := c.WithToken("tok-1").ListAgents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.True(t, strings.HasPrefix(gotUA, "agentdesk/"), gotUA)
	assert.Equal(t, "/api/v1/agents/", gotPath)
}

func TestRequest_NoTokenNoAuthHeader(t *testing.T) {
	var present bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["Authorization"]
		writeJSON(w, http.StatusOK, domain.Plans{})
	}))
	_, err := c.Plans(context.Background())
	require.NoError(t, err)
	assert.False(t, present)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantAuth bool
		relogin  bool
		detail   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail":"Could not validate credentials"}`, true, true, "Could not validate credentials"},
		{"forbidden", http.StatusForbidden, `{"detail":"The user doesn't have enough privileges"}`, true, false, "The user doesn't have enough privileges"},
		{"not found", http.StatusNotFound, `{"detail":"Agent not found"}`, false, false, "Agent not found"},
		{"validation", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","name"],"msg":"field required"}]}`, false, false, "name: field required"},
		{"plain text", http.StatusBadGateway, "upstream down\n", false, false, "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			_, err := c.GetAgent(context.Background(), 1)
			require.Error(t, err)

			assert.Equal(t, tt.wantAuth, domain.IsAuthError(err))
			assert.Equal(t, tt.relogin, domain.NeedsLogin(err))
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.detail, apiErr.Detail)
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	err := c.DeleteAgent(context.Background(), 9)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(nil))
}

func TestError_MessageWithoutDetail(t *testing.T) {
	e := &Error{Method: "GET", Path: "/x", StatusCode: 500}
	assert.Equal(t, "GET /x: 500 Internal Server Error", e.Error())
}

func TestRateLimiter_ContextCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, []domain.Tool{})
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, RequestsPerSecond: 0.001, Burst: 1})
	_, err := c.Tools(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Tools(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	assert.Equal(t, int32(1), calls.Load())
}
