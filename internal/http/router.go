package http

import (
	"log/slog"
	"net/http"

	"github.com/carmarket/server/internal/access"
	"github.com/carmarket/server/internal/auth"
	"github.com/carmarket/server/internal/http/handlers"
	"github.com/carmarket/server/internal/metrics"
	"github.com/carmarket/server/internal/middleware"
	"github.com/carmarket/server/internal/model"
	"github.com/carmarket/server/internal/repo"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Auth      *handlers.AuthHandler
	Users     *handlers.UserHandler
	Orders    *handlers.OrderHandler
	Health    http.Handler
	JWT       *auth.JWTService
	UserRepo  repo.UserRepo
	OrderRepo repo.OrderRepo
	Evaluator *access.Evaluator
	Metrics   *metrics.Metrics
	Log       *slog.Logger
	IPLimiter *middleware.RateLimiter
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(d.Metrics.Instrument(routePattern))

	r.Get("/health", d.Health.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	// allow builds the authorization middleware for one grant requirement.
	allow := func(rule middleware.Rule) func(http.Handler) http.Handler {
		return middleware.Authorize(d.Evaluator, d.Metrics, d.Log, rule)
	}
	self := func(a access.Action, res access.Resource) func(http.Handler) http.Handler {
		return allow(middleware.Rule{Action: a, Resource: res, Scope: access.ScopeOwn, Owner: access.Self})
	}
	admin := func(a access.Action) func(http.Handler) http.Handler {
		return allow(middleware.Rule{Action: a, Resource: access.ResourceUser, Scope: access.ScopeAny, Owner: access.Self})
	}

	r.Route("/auth", func(r chi.Router) {
		if d.IPLimiter != nil {
			r.Use(middleware.RateLimitMiddleware(d.IPLimiter, middleware.GetIPKey))
		}
		r.Post("/register", d.Auth.HandleRegister)
		r.Post("/login", d.Auth.HandleLogin)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/forgot-password", d.Users.HandleSendForgotPasswordCode)
		r.Post("/forgot-password", d.Users.HandleResetPassword)

		// Protected routes (require valid JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(d.JWT, d.UserRepo))

			r.With(self(access.ActionRead, access.ResourceUser)).Get("/isauth", d.Users.HandleIsAuth)

			r.With(self(access.ActionRead, access.ResourceEmailVerificationCode)).
				Get("/verify-email", d.Users.HandleResendCode(model.PurposeEmailVerify))
			r.With(self(access.ActionUpdate, access.ResourceEmailVerificationCode)).
				Post("/verify-email", d.Users.HandleVerifyCode(model.PurposeEmailVerify))
			r.With(self(access.ActionRead, access.ResourcePhoneVerificationCode)).
				Get("/verify-phone", d.Users.HandleResendCode(model.PurposePhoneVerify))
			r.With(self(access.ActionUpdate, access.ResourcePhoneVerificationCode)).
				Post("/verify-phone", d.Users.HandleVerifyCode(model.PurposePhoneVerify))

			r.With(self(access.ActionUpdate, access.ResourcePassword)).Patch("/change-password", d.Users.HandleChangePassword)
			r.With(self(access.ActionUpdate, access.ResourceUser)).Patch("/profile/update", d.Users.HandleUpdateProfile)
			r.With(self(access.ActionUpdate, access.ResourceUser)).Patch("/device-token", d.Users.HandleUpdateDeviceToken)

			r.Route("/admin/profile", func(r chi.Router) {
				r.With(admin(access.ActionUpdate)).Patch("/update", d.Users.HandleAdminUpdateProfile)
				r.With(admin(access.ActionUpdate)).Patch("/update-role", d.Users.HandleUpdateRole)
				r.With(admin(access.ActionRead)).Get("/find", d.Users.HandleFindUser)
				r.With(admin(access.ActionUpdate)).Patch("/verify", d.Users.HandleAdminVerify)
			})
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.JWT, d.UserRepo))

		r.With(self(access.ActionRead, access.ResourceOrder)).Get("/my", d.Orders.HandleMyOrders)
		r.With(allow(middleware.Rule{
			Action:   access.ActionRead,
			Resource: access.ResourceOrder,
			Target:   middleware.URLParamTarget("orderID"),
			Owner:    d.OrderRepo,
		})).Get("/{orderID}/details", d.Orders.HandleOrderDetails)
		r.With(allow(middleware.Rule{
			Action:   access.ActionDelete,
			Resource: access.ResourceOrder,
			Target:   middleware.URLParamTarget("orderID"),
			Owner:    d.OrderRepo,
		})).Delete("/{orderID}/delete", d.Orders.HandleDeleteOrder)
	})

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
