// server_test.go - Tests for the stub backend handlers
package stub

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/genstats/client/internal/api"
	"github.com/genstats/client/internal/models"
	"github.com/genstats/client/internal/realtime"
	"github.com/genstats/client/internal/session"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	s := New(opts)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

func newTestClient(t *testing.T, ts *httptest.Server, insightPath string) *api.Client {
	t.Helper()
	c, err := api.NewClient(api.Options{BaseURL: ts.URL, InsightPath: insightPath, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func multipartBody(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandleUpload(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		wantStatus int
		errCode    string
	}{
		{
			name:       "valid upload",
			field:      "file",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong field name",
			field:      "dataset",
			wantStatus: http.StatusBadRequest,
			errCode:    "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{})
			body, contentType := multipartBody(t, tt.field, "data.csv", "a,b\n1,2\n3,4\n")

			req := httptest.NewRequest(http.MethodPost, api.UploadPath, body)
			req.Header.Set(echo.HeaderContentType, contentType)
			rec := httptest.NewRecorder()
			c := s.e.NewContext(req, rec)

			err := s.handleUpload(c)
			if tt.errCode != "" {
				var apiErr *api.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.wantStatus, apiErr.Status)
				assert.Equal(t, tt.errCode, apiErr.Code)
				assert.Zero(t, s.Registry().Len())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp uploadResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.FileID)
			assert.Equal(t, "data.csv", resp.Filename)
			assert.Equal(t, int64(12), resp.Size)

			info, lines, ok := s.Registry().Get(resp.FileID)
			require.True(t, ok)
			assert.Equal(t, "data.csv", info.Name)
			assert.Equal(t, 3, lines)
		})
	}
}

func TestHandleSummary(t *testing.T) {
	s := New(Options{})
	info := s.Registry().Add("data.csv", "text/csv", []byte("x\n1\n2"))

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"known dataset", info.ID, http.StatusOK},
		{"unknown dataset", "missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, api.SummaryPath+tt.id, nil)
			rec := httptest.NewRecorder()
			c := s.e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues(tt.id)

			err := s.handleSummary(c)
			if tt.wantStatus != http.StatusOK {
				var apiErr *api.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.wantStatus, apiErr.Status)
				return
			}
			require.NoError(t, err)

			var resp summaryResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, info.ID, resp.FileID)
			assert.Equal(t, 3, resp.Lines)
			assert.Equal(t, int64(5), resp.Size)
		})
	}
}

func TestHandleInsights_Validation(t *testing.T) {
	s := New(Options{})

	req := httptest.NewRequest(http.MethodPost, api.InsightPath, strings.NewReader(`{"query":"   "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := s.handleInsights(s.e.NewContext(req, rec))
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"api error", api.NewNotFoundError("dataset", "x"), http.StatusNotFound, "NOT_FOUND"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed, "HTTP_ERROR"},
		{"plain error", assert.AnError, http.StatusInternalServerError, "UNKNOWN_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			ErrorHandler(tt.err, c)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body api.APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestServer_ClientRoundTrip(t *testing.T) {
	_, ts := newTestServer(t, Options{
		Version:   "test",
		Responder: func(q string) string { return "answer to " + q },
	})
	client := newTestClient(t, ts, "")
	ctx := context.Background()

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)

	res, err := client.Upload(ctx, "data.csv", "text/csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	require.False(t, res.FileID.IsZero())
	assert.JSONEq(t, `{"filename":"data.csv","content_type":"text/csv","size":8}`, string(res.Preview))

	summary, err := client.Summary(ctx, res.FileID)
	require.NoError(t, err)
	fields, err := summary.Fields()
	require.NoError(t, err)
	assert.Equal(t, "data.csv", fields["filename"])
	assert.Equal(t, float64(2), fields["lines"])

	answer, err := client.GenerateInsights(ctx, "find outliers")
	require.NoError(t, err)
	assert.Equal(t, "answer to find outliers", answer)
}

func TestServer_AliasInsightPath(t *testing.T) {
	_, ts := newTestServer(t, Options{Responder: func(string) string { return "alias ok" }})
	client := newTestClient(t, ts, api.AliasInsightPath)

	answer, err := client.GenerateInsights(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "alias ok", answer)
}

func TestServer_FailureInjection(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	client := newTestClient(t, ts, "")
	ctx := context.Background()

	s.Fail(RouteUpload, http.StatusServiceUnavailable)
	_, err := client.Upload(ctx, "data.csv", "", strings.NewReader("1"))
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Contains(t, apiErr.Message, "injected failure")
	assert.Zero(t, s.Registry().Len())

	s.Fail(RouteUpload, 0)
	_, err = client.Upload(ctx, "data.csv", "", strings.NewReader("1"))
	assert.NoError(t, err)
}

func TestServer_SessionScenario(t *testing.T) {
	s, ts := newTestServer(t, Options{Responder: func(string) string { return "3 outliers found" }})
	c := session.New(newTestClient(t, ts, ""))
	ctx := context.Background()

	c.SelectFile(models.UploadedFile{Name: "data.csv", Payload: []byte("a\n1\n")})
	handle, err := c.UploadFile(ctx)
	require.NoError(t, err)

	_, err = c.FetchSummary(ctx)
	require.NoError(t, err)

	s.Fail(RouteSummary, http.StatusInternalServerError)
	_, err = c.FetchSummary(ctx)
	assert.ErrorIs(t, err, session.ErrSummaryFetchFailed)
	assert.False(t, c.State().Summary.IsZero(), "failed fetch keeps the stored summary")
	assert.Equal(t, handle, c.State().SummaryHandle)

	answer, err := c.SubmitInsightQuery(ctx, "find outliers")
	require.NoError(t, err)
	assert.Equal(t, "3 outliers found", answer)
}

func TestHub_Broadcast(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	u, err := realtime.URLFromBase(ts.URL, api.RealtimePath)
	require.NoError(t, err)

	dial := func() (*realtime.Channel, chan string) {
		ch, err := realtime.Dial(context.Background(), u, realtime.Options{PingInterval: -1})
		require.NoError(t, err)
		t.Cleanup(func() { ch.Close() })
		got := make(chan string, 4)
		ch.OnMessage(func(m string) { got <- m })
		return ch, got
	}
	sender, fromSender := dial()
	_, fromOther := dial()

	require.Eventually(t, func() bool { return s.Hub().Count() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, sender.Send("hello"))

	for _, got := range []chan string{fromSender, fromOther} {
		select {
		case msg := <-got:
			assert.Equal(t, "hello", msg)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for broadcast")
		}
	}
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		data string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a\n", 1},
		{"a\nb", 2},
		{"a\nb\n", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countLines([]byte(tt.data)), "data %q", tt.data)
	}
}
