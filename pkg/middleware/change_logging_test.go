package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestChangeRequestLogger(t *testing.T) {
	t.Run("logs kind, sanitized values and outcome", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		logger := zap.New(core)

		var seenBody string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			seenBody = string(b)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"success":false,"outcome":"failed","error":"column is locked"}`))
		})

		body := `{"kind":"rename_choice","old_value":"Open\nNow","new_value":"Active"}`
		req := httptest.NewRequest(http.MethodPost, "/api/tables/t/columns/c/apply", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()

		ChangeRequestLogger(logger)(handler).ServeHTTP(rec, req)

		assert.Equal(t, body, seenBody, "handler must still see the full body")
		require.Equal(t, 1, logs.Len())

		entry := logs.All()[0]
		ctx := entry.ContextMap()
		assert.Equal(t, "Schema change request", entry.Message)
		assert.Equal(t, "rename_choice", ctx["kind"])
		assert.Equal(t, "Open Now", ctx["old_value"])
		assert.Equal(t, "Active", ctx["new_value"])
		assert.Equal(t, false, ctx["success"])
		assert.Equal(t, "column is locked", ctx["error"])
		assert.Equal(t, int64(http.StatusOK), ctx["status"])
	})

	t.Run("non JSON body still logs", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := zap.New(core)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		req := httptest.NewRequest(http.MethodPost, "/api/tables/t/columns/c/apply", bytes.NewBufferString("not json"))
		ChangeRequestLogger(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)

		infos := logs.FilterMessage("Schema change request").All()
		require.Len(t, infos, 1)
		assert.Equal(t, int64(http.StatusBadRequest), infos[0].ContextMap()["status"])
		_, hasSuccess := infos[0].ContextMap()["success"]
		assert.False(t, hasSuccess)
	})

	t.Run("nil logger passes through", func(t *testing.T) {
		called := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

		ChangeRequestLogger(nil)(handler).ServeHTTP(httptest.NewRecorder(),
			httptest.NewRequest(http.MethodPost, "/", nil))
		assert.True(t, called)
	})
}
