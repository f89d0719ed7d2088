// client_test.go - Tests for the backend HTTP client
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/genstats/client/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	o := Options{BaseURL: srv.URL, Timeout: 5 * time.Second}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := NewClient(o)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"http", "http://localhost:8000", false},
		{"https with trailing slash", "https://api.example.com/", false},
		{"empty", "", true},
		{"unsupported scheme", "ftp://host", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(Options{BaseURL: tt.baseURL})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.False(t, strings.HasSuffix(c.BaseURL(), "/"))
		})
	}
}

func TestClient_Upload(t *testing.T) {
	var gotPath, gotName, gotType, gotBody, gotReqID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotReqID = r.Header.Get(HeaderRequestID)
		f, fh, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotName = fh.Filename
		gotType = fh.Header.Get("Content-Type")
		gotBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"file_id":"abc123","columns":["x","y"]}`))
	})

	res, err := c.Upload(context.Background(), `my "data".csv`, "", strings.NewReader("x,y\n1,2\n"))
	require.NoError(t, err)

	assert.Equal(t, UploadPath, gotPath)
	assert.Equal(t, `my "data".csv`, gotName)
	assert.Equal(t, models.DefaultContentType, gotType)
	assert.Equal(t, "x,y\n1,2\n", gotBody)
	assert.NotEmpty(t, gotReqID)

	assert.Equal(t, models.DatasetHandle("abc123"), res.FileID)
	assert.JSONEq(t, `{"columns":["x","y"]}`, string(res.Preview))

	t.Run("numeric file_id", func(t *testing.T) {
		var summaryURI string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				summaryURI = r.RequestURI
				w.Write([]byte(`{"rows":1}`))
				return
			}
			io.Copy(io.Discard, r.Body)
			w.Write([]byte(`{"file_id": 42}`))
		})

		res, err := c.Upload(context.Background(), "data.csv", "text/csv", strings.NewReader("x\n1\n"))
		require.NoError(t, err)
		assert.Equal(t, models.DatasetHandle("42"), res.FileID)
		assert.Empty(t, res.Preview)

		_, err = c.Summary(context.Background(), res.FileID)
		require.NoError(t, err)
		assert.Equal(t, "/summary/42", summaryURI)
	})

	t.Run("large numeric file_id keeps its text", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			w.Write([]byte(`{"file_id":12345678901234567890}`))
		})
		res, err := c.Upload(context.Background(), "data.csv", "text/csv", strings.NewReader("1"))
		require.NoError(t, err)
		assert.Equal(t, models.DatasetHandle("12345678901234567890"), res.FileID)
	})
}

func TestClient_UploadResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing file_id", `{"status":"ok"}`},
		{"empty file_id", `{"file_id":""}`},
		{"null file_id", `{"file_id":null}`},
		{"object file_id", `{"file_id":{"id":1}}`},
		{"array file_id", `{"file_id":["a"]}`},
		{"boolean file_id", `{"file_id":true}`},
		{"not json", `<html>ok</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				w.Write([]byte(tt.body))
			})
			_, err := c.Upload(context.Background(), "data.csv", "text/csv", strings.NewReader("1"))
			assert.Error(t, err)
		})
	}
}

func TestClient_Summary(t *testing.T) {
	var gotURI string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.RequestURI
		w.Write([]byte(`{"rows":100}`))
	})

	summary, err := c.Summary(context.Background(), "a b/c")
	require.NoError(t, err)
	assert.Equal(t, "/summary/a%20b%2Fc", gotURI)
	assert.JSONEq(t, `{"rows":100}`, string(summary))

	_, err = c.Summary(context.Background(), "")
	assert.Error(t, err)
}

func TestClient_SummaryInvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	_, err := c.Summary(context.Background(), "abc123")
	assert.Error(t, err)
}

func TestClient_ResponseTooLarge(t *testing.T) {
	saved := maxResponseBytes
	maxResponseBytes = 16
	t.Cleanup(func() { maxResponseBytes = saved })

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rows":100,"columns":["a","b","c"]}`))
	})

	_, err := c.Summary(context.Background(), "abc123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")

	t.Run("exactly at the limit", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"rows":1234567}`))
		})
		summary, err := c.Summary(context.Background(), "abc123")
		require.NoError(t, err)
		assert.JSONEq(t, `{"rows":1234567}`, string(summary))
	})
}

func TestClient_GenerateInsights(t *testing.T) {
	tests := []struct {
		name        string
		insightPath string
		wantPath    string
	}{
		{"canonical path", "", InsightPath},
		{"alias path", AliasInsightPath, AliasInsightPath},
		{"path without slash", "generate_ai", AliasInsightPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			var gotBody map[string]string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				json.NewDecoder(r.Body).Decode(&gotBody)
				w.Write([]byte(`{"response":"3 outliers found"}`))
			}, func(o *Options) { o.InsightPath = tt.insightPath })

			answer, err := c.GenerateInsights(context.Background(), "find outliers")
			require.NoError(t, err)
			assert.Equal(t, "3 outliers found", answer)
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Equal(t, map[string]string{"query": "find outliers"}, gotBody)
		})
	}
}

func TestClient_GenerateInsightsMissingResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answer":"wrong field"}`))
	})
	_, err := c.GenerateInsights(context.Background(), "q")
	assert.Error(t, err)
}

func TestClient_GenerateInsightsEmptyResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":""}`))
	})
	answer, err := c.GenerateInsights(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, answer)
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    string
		wantMessage string
	}{
		{
			name:        "structured error",
			status:      http.StatusBadRequest,
			body:        `{"code":"VALIDATION_ERROR","message":"validation failed for field: query"}`,
			wantCode:    "VALIDATION_ERROR",
			wantMessage: "validation failed for field: query",
		},
		{
			name:        "detail string",
			status:      http.StatusNotFound,
			body:        `{"detail":"File not found"}`,
			wantCode:    "NOT_FOUND",
			wantMessage: "File not found",
		},
		{
			name:        "plain text",
			status:      http.StatusBadGateway,
			body:        "upstream down",
			wantCode:    "INTERNAL_ERROR",
			wantMessage: "upstream down",
		},
		{
			name:        "empty body",
			status:      http.StatusServiceUnavailable,
			body:        "",
			wantCode:    "SERVICE_UNAVAILABLE",
			wantMessage: "Service Unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Summary(context.Background(), "abc123")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(Options{BaseURL: base})
	require.NoError(t, err)

	_, err = c.GenerateInsights(context.Background(), "q")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestClient_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Summary(ctx, "abc123")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != HealthPath {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"ok","version":"1.2.3"}`))
	})

	status, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &HealthStatus{Status: "ok", Version: "1.2.3"}, status)
}
