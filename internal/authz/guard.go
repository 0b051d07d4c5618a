package authz

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// principalContextKey is the gin context key under which the auth layer
// stores the request principal.
const principalContextKey = "authz_principal"

// SetPrincipal stores the authenticated principal on the request context.
// Called by the auth middleware after credential verification.
func SetPrincipal(c *gin.Context, p Principal) {
	c.Set(principalContextKey, p)
}

// PrincipalFrom extracts the principal placed on the context by the auth
// middleware.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// Suggestion classifies a denial for presentation: whether the user should
// ask an administrator, upgrade the workspace plan, or neither specifically.
// The classification is a presentation decision and lives in the guard, not
// the engine.
type Suggestion string

const (
	SuggestionContactAdmin Suggestion = "contact_admin"
	SuggestionUpgradePlan  Suggestion = "upgrade_plan"
	SuggestionBoth         Suggestion = "upgrade_plan_and_contact_admin"
	SuggestionNone         Suggestion = "denied"
)

// DenialResponse is the structured 403 body returned for an authorization
// denial. Denials are data, never a bare status code.
type DenialResponse struct {
	Error              string       `json:"error"`
	Message            string       `json:"message"`
	Suggestion         Suggestion   `json:"suggestion"`
	InsufficientRole   bool         `json:"insufficient_role,omitempty"`
	MissingPermissions []Permission `json:"missing_permissions,omitempty"`
	MissingFeatures    []Feature    `json:"missing_features,omitempty"`
	RequestID          string       `json:"request_id,omitempty"`
}

var authzDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "omnichat",
		Name:      "authz_decisions_total",
		Help:      "Total number of authorization decisions",
	},
	[]string{"outcome", "suggestion"},
)

// DenyHook is invoked on every denial, after the response is written.
// The audit recorder hangs off this.
type DenyHook func(c *gin.Context, principal Principal, result Result)

// Guard protects routes by evaluating a Requirement against the request
// principal once per navigation.
type Guard struct {
	engine   *Engine
	logger   *zap.Logger
	denyHook DenyHook
}

// NewGuard returns a route guard over the given engine.
func NewGuard(engine *Engine, logger *zap.Logger) *Guard {
	return &Guard{
		engine: engine,
		logger: logger.With(zap.String("component", "authz_guard")),
	}
}

// SetDenyHook registers a hook invoked on every denial.
func (g *Guard) SetDenyHook(hook DenyHook) {
	g.denyHook = hook
}

// Require returns a middleware enforcing req on the route. An invalid
// requirement panics at registration time: a route guarded by a malformed
// requirement is a programmer error that must not reach serving.
func (g *Guard) Require(req Requirement) gin.HandlerFunc {
	if err := g.engine.validateRequirement(req); err != nil {
		panic(err)
	}

	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "UNAUTHORIZED",
				"message": "authentication required",
			})
			return
		}

		result, err := g.engine.Evaluate(principal, req)
		if err != nil {
			// Unknown role/tier on a live principal is a configuration
			// defect, not a denial. Surface it as a server error.
			g.logger.Error("Authorization evaluation failed",
				zap.String("principal_id", principal.ID),
				zap.String("role", string(principal.Role)),
				zap.Error(err))
			authzDecisionsTotal.WithLabelValues("error", string(SuggestionNone)).Inc()
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "AUTHZ_MISCONFIGURED",
				"message": "authorization could not be evaluated",
			})
			return
		}

		if result.CanAccess {
			authzDecisionsTotal.WithLabelValues("allow", "").Inc()
			c.Next()
			return
		}

		suggestion := Classify(result)
		authzDecisionsTotal.WithLabelValues("deny", string(suggestion)).Inc()

		requestID, _ := c.Get("request_id")
		reqIDStr, _ := requestID.(string)

		g.logger.Info("Access denied",
			zap.String("principal_id", principal.ID),
			zap.String("role", string(principal.Role)),
			zap.String("path", c.FullPath()),
			zap.String("reason", result.Reason),
			zap.String("suggestion", string(suggestion)))

		c.AbortWithStatusJSON(http.StatusForbidden, DenialResponse{
			Error:              "FORBIDDEN",
			Message:            result.Reason,
			Suggestion:         suggestion,
			InsufficientRole:   result.InsufficientRole,
			MissingPermissions: result.MissingPermissions,
			MissingFeatures:    result.MissingFeatures,
			RequestID:          reqIDStr,
		})

		if g.denyHook != nil {
			g.denyHook(c, principal, result)
		}
	}
}

// RequirePermission guards a route with a single permission requirement.
func (g *Guard) RequirePermission(resource Resource, action Action) gin.HandlerFunc {
	return g.Require(Requirement{
		RequiredPermissions: []Permission{{Resource: resource, Action: action}},
	})
}

// RequireMinRole guards a route with a minimum role level requirement.
func (g *Guard) RequireMinRole(min Role) gin.HandlerFunc {
	return g.Require(Requirement{MinRole: min})
}

// RequireFeature guards a route with a plan feature requirement.
func (g *Guard) RequireFeature(feature Feature) gin.HandlerFunc {
	return g.Require(Requirement{RequiredFeatures: []Feature{feature}})
}

// Classify maps a denial to its presentation suggestion: role or permission
// shortfalls point at an administrator, feature shortfalls at a plan
// upgrade, and a mixed denial reports both.
func Classify(result Result) Suggestion {
	if result.CanAccess {
		return SuggestionNone
	}
	needsAdmin := result.InsufficientRole || len(result.MissingPermissions) > 0
	needsUpgrade := len(result.MissingFeatures) > 0
	switch {
	case needsAdmin && needsUpgrade:
		return SuggestionBoth
	case needsUpgrade:
		return SuggestionUpgradePlan
	case needsAdmin:
		return SuggestionContactAdmin
	default:
		return SuggestionNone
	}
}
