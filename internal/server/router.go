package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/auth"
	"github.com/example/shopfront/internal/datamodels/cart"
	"github.com/example/shopfront/internal/datamodels/identity"
	"github.com/example/shopfront/internal/datamodels/user"
	"github.com/example/shopfront/internal/logging"
	"github.com/example/shopfront/internal/middleware"
	"github.com/example/shopfront/internal/service"
)

// Deps 路由依赖
type Deps struct {
	Users    *service.UserService
	Chat     *service.ChatService
	Carts    *service.CartService
	Verifier *auth.Verifier
	Monitor  *service.Monitor
	// Unread 客服未读计数，nil 时不挂对应接口
	Unread *service.UnreadTracker
	// Limiter 登录/注册接口限流，nil 时不限流
	Limiter *middleware.KeyedLimiter
	// ChatWS STOMP over websocket 入口，nil 时不挂 /ws
	ChatWS http.Handler
	Logger *zap.Logger
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registration struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// RegisterRoutes 注册所有 HTTP 路由
func RegisterRoutes(app *iris.Application, d Deps) {
	logger := logging.OrNop(d.Logger).Named("http")

	limit := func(ctx iris.Context) { ctx.Next() }
	if d.Limiter != nil {
		limit = middleware.RateLimit(d.Limiter)
	}

	// 管理员与顾客是两套独立的登录/注册接口
	for _, role := range []identity.Role{identity.RoleAdmin, identity.RoleCustomer} {
		role := role
		authParty := app.Party("/auth/" + string(role))
		authParty.Post("/login", limit, func(ctx iris.Context) {
			var req credentials
			if err := ctx.ReadJSON(&req); err != nil {
				fail(ctx, logger, badRequest(err))
				return
			}
			res, err := d.Users.Login(ctx.Request().Context(), role, req.Username, req.Password)
			if err != nil {
				fail(ctx, logger, err)
				return
			}
			ok(ctx, res)
		})
		authParty.Post("/register", limit, func(ctx iris.Context) {
			var req registration
			if err := ctx.ReadJSON(&req); err != nil {
				fail(ctx, logger, badRequest(err))
				return
			}
			u, err := d.Users.Register(ctx.Request().Context(), role, req.Username, req.Password, req.DisplayName)
			if err != nil {
				fail(ctx, logger, err)
				return
			}
			ok(ctx, iris.Map{
				"id":          u.ID,
				"username":    u.Username,
				"role":        u.Role,
				"displayName": u.DisplayName,
			})
		})
	}

	if d.ChatWS != nil {
		app.Get("/ws", iris.FromStd(d.ChatWS))
	}

	api := app.Party("/api")

	// 健康检查
	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "msg": "ok"})
	})

	// 需要登录的接口
	authAPI := api.Party("/", middleware.Authenticate(d.Verifier))

	authAPI.Get("/chat/history/{customerId:string}", func(ctx iris.Context) {
		limit := ctx.URLParamIntDefault("limit", 0)
		list, err := d.Chat.History(ctx.Request().Context(), middleware.Actor(ctx), ctx.Params().Get("customerId"), limit)
		if err != nil {
			fail(ctx, logger, err)
			return
		}
		ok(ctx, list)
	})

	cartAPI := authAPI.Party("/customer/cart")
	cartAPI.Get("/getCustomer/{customerId:string}", func(ctx iris.Context) {
		c, err := d.Carts.ByCustomer(ctx.Request().Context(), middleware.Actor(ctx), ctx.Params().Get("customerId"))
		if err != nil {
			fail(ctx, logger, err)
			return
		}
		ok(ctx, c)
	})
	cartAPI.Get("/{cartId:int64}/item-count", func(ctx iris.Context) {
		id, _ := ctx.Params().GetInt64("cartId")
		n, err := d.Carts.ItemCount(ctx.Request().Context(), middleware.Actor(ctx), id)
		if err != nil {
			fail(ctx, logger, err)
			return
		}
		ok(ctx, iris.Map{"count": n})
	})
	cartAPI.Post("/{cartId:int64}/items", func(ctx iris.Context) {
		id, _ := ctx.Params().GetInt64("cartId")
		var req struct {
			ProductID int64 `json:"productId"`
			Quantity  int64 `json:"quantity"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			fail(ctx, logger, badRequest(err))
			return
		}
		item, err := d.Carts.AddItem(ctx.Request().Context(), middleware.Actor(ctx), id, req.ProductID, req.Quantity)
		if err != nil {
			fail(ctx, logger, err)
			return
		}
		ok(ctx, item)
	})

	// 运行统计，仅管理员
	adminAPI := authAPI.Party("/admin", middleware.RequireAdmin())
	adminAPI.Get("/stats", func(ctx iris.Context) {
		ok(ctx, d.Monitor.Stats())
	})
	if d.Unread != nil {
		adminAPI.Get("/chat/unread/{customerId:string}", func(ctx iris.Context) {
			n, err := d.Unread.Unread(ctx.Request().Context(), middleware.Actor(ctx), ctx.Params().Get("customerId"))
			if err != nil {
				fail(ctx, logger, err)
				return
			}
			ok(ctx, iris.Map{"count": n})
		})
	}
}

func ok(ctx iris.Context, data interface{}) {
	ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": data})
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
}

// fail 业务错误映射为 HTTP 状态码，响应体沿用 code/msg 结构
func fail(ctx iris.Context, logger *zap.Logger, err error) {
	status := iris.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = iris.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		status = iris.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		status = iris.StatusForbidden
	case errors.Is(err, user.ErrNotFound), errors.Is(err, cart.ErrNotFound):
		status = iris.StatusNotFound
	case errors.Is(err, user.ErrExists):
		status = iris.StatusConflict
	}
	msg := err.Error()
	if status == iris.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", ctx.Path()), zap.Error(err))
		msg = "internal error"
	}
	ctx.StopWithJSON(status, iris.Map{"code": status, "msg": msg})
}
