package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newEngine(h gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestIDMiddleware())
	engine.GET("/", h)
	return engine
}

func serve(engine *gin.Engine, requestID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestFailMarksTransientErrorsRetryable(t *testing.T) {
	cases := []struct {
		code      ErrCode
		retryable bool
	}{
		{ErrStorageUnavailable, true},
		{ErrCollaboratorUnavailable, true},
		{ErrSubmissionInProgress, true},
		{ErrRateLimitExceeded, true},
		{ErrSessionNotFound, false},
		{ErrValidation, false},
		{ErrInternal, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			rec := serve(newEngine(func(c *gin.Context) {
				Fail(c, http.StatusServiceUnavailable, tc.code)
			}), "")

			var body Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotNil(t, body.Error)
			require.Equal(t, tc.code, body.Error.Code)
			require.Equal(t, tc.retryable, body.Error.Retryable)
			require.Equal(t, GetMessage(tc.code), body.Error.Message)
			require.Equal(t, tc.retryable, strings.Contains(rec.Body.String(), `"retryable":true`))
		})
	}
}

func TestFailWithFieldsKeepsFields(t *testing.T) {
	rec := serve(newEngine(func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"kind": "kind is required"})
	}), "")

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, map[string]string{"kind": "kind is required"}, body.Error.Fields)
	require.Nil(t, body.Data)
}

func TestRequestIDMiddleware(t *testing.T) {
	engine := newEngine(func(c *gin.Context) {
		Success(c, http.StatusOK, gin.H{"ok": true})
	})

	rec := serve(engine, "proctor-client.42")
	require.Equal(t, "proctor-client.42", rec.Header().Get("X-Request-ID"))
	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "proctor-client.42", body.Metadata.RequestID)

	rec = serve(engine, "bad id\r\nwith spaces")
	generated := rec.Header().Get("X-Request-ID")
	require.NotEqual(t, "bad id\r\nwith spaces", generated)
	require.Len(t, generated, 36)

	rec = serve(engine, strings.Repeat("a", maxRequestIDLength+1))
	require.Len(t, rec.Header().Get("X-Request-ID"), 36)

	rec = serve(engine, "")
	require.Len(t, rec.Header().Get("X-Request-ID"), 36)
}
