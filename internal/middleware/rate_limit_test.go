package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sailchat/internal/auth"
	"github.com/example/sailchat/internal/config"
)

func TestUserLimiterIsPerUser(t *testing.T) {
	l := NewUserLimiter(config.RateLimitConfig{MessagesPerSecond: 1, Burst: 2})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow(1))
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1))
	assert.True(t, l.Allow(2))

	now = now.Add(time.Second)
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1))
}

func TestUserLimiterSweepsIdleBuckets(t *testing.T) {
	l := NewUserLimiter(config.RateLimitConfig{MessagesPerSecond: 1, Burst: 1})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow(1)
	l.Allow(2)
	now = now.Add(idleAfter + time.Minute)
	l.Allow(3)
	assert.Len(t, l.buckets, 1)
}

func TestUserLimiterUnlimited(t *testing.T) {
	l := NewUserLimiter(config.RateLimitConfig{})
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow(1))
	}
}

func newTestApp(t *testing.T, l *UserLimiter) *iris.Application {
	cfg := &config.JWTConfig{Secret: "s"}
	app := iris.New()
	api := app.Party("/", Auth(auth.NewAuthenticator(cfg, nil)), RateLimitMiddleware(l))
	api.Post("/send", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "user": UserID(ctx)})
	})
	require.NoError(t, app.Build())
	return app
}

func post(app *iris.Application, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/send", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func TestAuthAndRateLimitMiddleware(t *testing.T) {
	l := NewUserLimiter(config.RateLimitConfig{MessagesPerSecond: 0.001, Burst: 1})
	app := newTestApp(t, l)

	assert.Equal(t, http.StatusUnauthorized, post(app, "").Code)
	assert.Equal(t, http.StatusUnauthorized, post(app, "Bearer nope").Code)

	token, err := auth.GenerateToken(&config.JWTConfig{Secret: "s"}, 5, "dave")
	require.NoError(t, err)

	rec := post(app, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":0,"user":5}`, rec.Body.String())

	rec = post(app, "Bearer "+token)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":429`)
}
