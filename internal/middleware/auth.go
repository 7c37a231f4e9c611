package middleware

import (
	"strings"

	"github.com/kataras/iris/v12"

	"github.com/example/shopfront/internal/auth"
	"github.com/example/shopfront/internal/service"
)

const claimsKey = "auth.claims"

// Authenticate 校验 Authorization: Bearer <jwt>，失败一律 401
func Authenticate(v *auth.Verifier) iris.Handler {
	return func(ctx iris.Context) {
		token, ok := bearerToken(ctx.GetHeader("Authorization"))
		if !ok {
			ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"code": iris.StatusUnauthorized, "msg": "missing token"})
			return
		}
		claims, err := v.Verify(ctx.Request().Context(), token)
		if err != nil {
			ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"code": iris.StatusUnauthorized, "msg": "invalid token"})
			return
		}
		ctx.Values().Set(claimsKey, claims)
		ctx.Next()
	}
}

// RequireAdmin 仅管理员可访问，需放在 Authenticate 之后
func RequireAdmin() iris.Handler {
	return func(ctx iris.Context) {
		if c := Claims(ctx); c == nil || !c.IsAdmin() {
			ctx.StopWithJSON(iris.StatusForbidden, iris.Map{"code": iris.StatusForbidden, "msg": "admin only"})
			return
		}
		ctx.Next()
	}
}

// Claims 当前请求的 token 信息，未鉴权时为 nil
func Claims(ctx iris.Context) *auth.Claims {
	c, _ := ctx.Values().Get(claimsKey).(*auth.Claims)
	return c
}

// Actor 把 token 信息转成服务层的操作者
func Actor(ctx iris.Context) service.Actor {
	c := Claims(ctx)
	if c == nil {
		return service.Actor{}
	}
	return service.ActorFromClaims(c)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
