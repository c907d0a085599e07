package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	originalLog := log
	defer func() { log = originalLog }()

	t.Run("Production", func(t *testing.T) {
		Init("production")
		assert.NotNil(t, log)
	})

	t.Run("Development", func(t *testing.T) {
		Init("development")
		assert.NotNil(t, log)
		assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("LevelOverride", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "warn")
		Init("development")
		assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
	})
}

func TestL(t *testing.T) {
	originalLog := log
	defer func() { log = originalLog }()

	// Force nil to test lazy initialization
	log = nil
	t.Setenv("APP_ENV", "test")

	l := L()
	assert.NotNil(t, l)
	assert.NotNil(t, log)
}

func TestContextFunctions(t *testing.T) {
	ctx := context.Background()

	t.Run("RequestID", func(t *testing.T) {
		assert.Equal(t, "req-1", RequestIDFrom(WithRequestID(ctx, "req-1")))
		assert.Equal(t, "", RequestIDFrom(ctx))
	})

	t.Run("CheckoutToken", func(t *testing.T) {
		assert.Equal(t, "tok-1", CheckoutTokenFrom(WithCheckoutToken(ctx, "tok-1")))
		assert.Equal(t, "", CheckoutTokenFrom(ctx))
	})
}

func TestFromCtx(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	originalLog := log
	log = zap.New(core)
	defer func() { log = originalLog }()

	t.Run("WithFields", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-abc-123")
		ctx = WithCheckoutToken(ctx, "3f1c")

		FromCtx(ctx).Info("test message with id")

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		fields := logs[0].ContextMap()
		assert.Equal(t, "req-abc-123", fields["request_id"])
		assert.Equal(t, "3f1c", fields["checkout_token"])
	})

	t.Run("WithoutFields", func(t *testing.T) {
		FromCtx(context.Background()).Info("test message without id")

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		_, ok := logs[0].ContextMap()["request_id"]
		assert.False(t, ok)
	})
}

func TestMiddleware(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	originalLog := log
	log = zap.New(core)
	defer func() { log = originalLog }()

	var seenID string
	handler := RequestIDMiddleware(LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFrom(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	t.Run("generates request id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.NotEmpty(t, seenID)
		assert.Equal(t, seenID, rr.Header().Get("X-Request-ID"))

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, "incoming request", logs[0].Message)
		assert.EqualValues(t, http.StatusTeapot, logs[0].ContextMap()["status"])
	})

	t.Run("keeps incoming request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "given-id")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, "given-id", seenID)
		assert.Equal(t, "given-id", rr.Header().Get("X-Request-ID"))
		observed.TakeAll()
	})

	t.Run("server errors log at error level", func(t *testing.T) {
		failing := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		failing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/checkouts/x/complete", nil))

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)
		assert.EqualValues(t, http.StatusInternalServerError, logs[0].ContextMap()["status"])
		assert.Positive(t, logs[0].ContextMap()["bytes"])
	})
}
