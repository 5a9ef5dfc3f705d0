package middleware

import (
	"github.com/kataras/iris/v12"

	"github.com/example/sailchat/internal/auth"
)

const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
)

// Auth 校验 Authorization 头并把用户信息写入 ctx.Values()
func Auth(a *auth.Authenticator) iris.Handler {
	return func(ctx iris.Context) {
		header := ctx.GetHeader("Authorization")
		if header == "" {
			ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"code": iris.StatusUnauthorized, "msg": "missing token"})
			return
		}
		claims, err := a.Authenticate(ctx.Request().Context(), header)
		if err != nil {
			ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"code": iris.StatusUnauthorized, "msg": "invalid token"})
			return
		}
		ctx.Values().Set(UserIDKey, claims.UserID)
		ctx.Values().Set(UsernameKey, claims.Username)
		ctx.Next()
	}
}

// UserID 当前登录用户
func UserID(ctx iris.Context) int64 {
	return ctx.Values().GetInt64Default(UserIDKey, 0)
}
