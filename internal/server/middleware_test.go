package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/alacard/internal/model"
	"github.com/ashita-ai/alacard/internal/testutil"
)

func TestRecoveryMiddleware(t *testing.T) {
	h := requestIDMiddleware(recoveryMiddleware(testutil.TestLogger(),
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cards/models", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body model.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, model.ErrCodeInternalError, body.Error.Code)
	assert.NotEmpty(t, body.Meta.RequestID)
}

func TestRequestIDRejectsOversizedHeader(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", string(make([]byte, 200)))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Len(t, seen, 36)
}

func TestStatusWriterKeepsFirstCode(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	w.WriteHeader(http.StatusAccepted)
	w.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusAccepted, w.statusCode)
	assert.Same(t, rec, w.Unwrap())
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandlers(HandlersDeps{AllowedOrigins: []string{"https://alacard.dev"}})
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/x/ws", nil)
	assert.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "https://alacard.dev")
	assert.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.checkOrigin(req))

	open := NewHandlers(HandlersDeps{})
	assert.True(t, open.checkOrigin(req))
}

func TestDownloadFilename(t *testing.T) {
	at := time.Unix(1759600000, 0)
	assert.Equal(t, "alacard-Llama-3.1-8B-Instruct-1759600000.ipynb", DownloadFilename("Llama-3.1-8B-Instruct", at))
	assert.Equal(t, "alacard-My-Model--1759600000.ipynb", DownloadFilename("My Model!", at))
	assert.Equal(t, "alacard-notebook-1759600000.ipynb", DownloadFilename("", at))
}
