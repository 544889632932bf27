package http

import (
	"log/slog"
	"net/http"
	"time"

	_ "github.com/aussiebroadwan/consoleauth/internal/devauth/http/docs" // Swagger docs
	"github.com/aussiebroadwan/consoleauth/internal/devauth/service"
	"github.com/aussiebroadwan/consoleauth/pkg/authz"
	"github.com/aussiebroadwan/consoleauth/pkg/httpx"
	"github.com/aussiebroadwan/consoleauth/pkg/jwtx"
	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Limits are the rate limit profiles applied per endpoint class.
type Limits struct {
	Login   httpx.RateLimitConfig
	Refresh httpx.RateLimitConfig
	User    httpx.RateLimitConfig
	Public  httpx.RateLimitConfig
}

// DefaultLimits uses the httpx profiles.
func DefaultLimits() Limits {
	return Limits{
		Login:   httpx.StrictLimit,
		Refresh: httpx.ModerateLimit,
		User:    httpx.PublicLimit,
		Public:  httpx.PublicLimit,
	}
}

// LimitsFromEnv applies RATELIMIT_{LOGIN,REFRESH,USER,PUBLIC}_* overrides.
func LimitsFromEnv() Limits {
	def := DefaultLimits()
	return Limits{
		Login:   httpx.RateLimitFromEnv("LOGIN", def.Login),
		Refresh: httpx.RateLimitFromEnv("REFRESH", def.Refresh),
		User:    httpx.RateLimitFromEnv("USER", def.User),
		Public:  httpx.RateLimitFromEnv("PUBLIC", def.Public),
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	AuthService      *service.AuthService
	UserService      *service.UserService
	ChallengeService *service.ChallengeService

	Evaluator    authz.Evaluator
	Limits       Limits
	CookieSecure bool
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		Limits:       DefaultLimits(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerChallenges()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Console Auth Reference API
//	@version		0.1.0
//	@description	Reference backend for the admin console session SDK.
//	@description
//	@description				Access tokens are EdDSA-signed JWTs verifiable through the JWKS endpoint.
//	@description				Refresh tokens travel only in the HttpOnly refresh_token cookie.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/consoleauth
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AuthService:  r.AuthService,
		UserService:  r.UserService,
		CookieSecure: r.CookieSecure,
	}

	// Keyed by address and submitted email so one address cannot spray accounts.
	r.Mux.Handle("POST /api/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(r.Limits.Login, "email"),
		),
	)

	r.Mux.Handle("POST /api/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(r.Limits.Login),
		),
	)

	r.Mux.Handle("POST /api/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.Limits.Refresh),
		),
	)

	r.Mux.Handle("POST /api/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(r.Limits.User),
		),
	)

	r.Mux.Handle("GET /api/auth/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(r.Limits.User),
		),
	)
}

// ViewChallenges guards the challenge list.
var ViewChallenges = authz.Policy{
	RequireRole:         authz.RoleAdmin,
	RequireAnyAuthority: []string{authz.ChallengeViewAll},
}

func (r *Router) registerChallenges() {
	h := &ChallengesHandler{ChallengeService: r.ChallengeService, Evaluator: r.Evaluator}

	r.Mux.Handle("GET /api/challenges",
		httpx.Chain(h,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequirePolicy(r.Evaluator, ViewChallenges),
			httpx.RateLimitByUser(r.Limits.User),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))

	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
}
