package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/logging"
)

// maxLoggedBody bounds how much of a change request is buffered for logging.
const maxLoggedBody = 64 << 10

// ChangeRequestLogger logs schema change requests and their outcome at
// INFO level. It reads the change kind and target from the JSON body and
// the success flag from the JSON response. Values supplied by users are
// passed through logging.SanitizeValue. Pass nil logger to disable.
func ChangeRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
			if err != nil {
				logger.Error("Failed to read change request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(bodyBytes), r.Body))

			var req changeRequest
			if err := json.Unmarshal(bodyBytes, &req); err != nil {
				logger.Debug("Change request body is not JSON", zap.Error(err))
			}

			recorder := &changeResponseRecorder{
				responseWriter: responseWriter{ResponseWriter: w, statusCode: http.StatusOK},
			}
			start := time.Now()

			next.ServeHTTP(recorder, r)

			fields := []zap.Field{
				zap.String("path", r.URL.Path),
				zap.String("kind", req.Kind),
				zap.Int("status", recorder.statusCode),
				zap.Duration("duration", time.Since(start)),
			}
			for _, name := range []string{"new_name", "new_type", "old_value", "new_value", "target", "default"} {
				if v, ok := req.values[name]; ok && v != "" {
					fields = append(fields, zap.String(name, logging.SanitizeValue(v)))
				}
			}

			var resp changeResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &resp); err == nil && resp.Success != nil {
				fields = append(fields, zap.Bool("success", *resp.Success))
				if resp.Error != "" {
					fields = append(fields, zap.String("error", resp.Error))
				}
			}

			logger.Info("Schema change request", fields...)
		})
	}
}

// changeRequest picks the loggable parts of a change body.
type changeRequest struct {
	Kind   string
	values map[string]string
}

func (c *changeRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.values = make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if json.Unmarshal(v, &s) == nil {
			c.values[k] = s
		}
	}
	c.Kind = c.values["kind"]
	return nil
}

type changeResponse struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// changeResponseRecorder captures the response body while writing through.
type changeResponseRecorder struct {
	responseWriter
	body bytes.Buffer
}

func (r *changeResponseRecorder) Write(b []byte) (int, error) {
	if r.body.Len() < maxLoggedBody {
		r.body.Write(b)
	}
	return r.responseWriter.Write(b)
}
