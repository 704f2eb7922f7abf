package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Principal is the already-verified caller identity the engine consumes
// (SPEC_FULL §6): unlike the teacher's FirebaseAuth, the engine never
// authenticates a token itself — authentication happens upstream, and
// only the result is handed in.
type Principal struct {
	UserID      string
	ClientID    string
	Superuser   bool
}

// Resolver turns an inbound request into a Principal. HeaderResolver is
// the only implementation shipped here; a deployment that authenticates
// behind a different gateway convention supplies its own.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (Principal, error)
}

// PrincipalMiddleware wraps a Resolver as gin middleware, following the
// teacher's AuthMiddleware shape (a struct holding its collaborator,
// exposing a gin.HandlerFunc-returning method) generalized from
// verifying a Firebase token to trusting an injected Resolver.
type PrincipalMiddleware struct {
	Resolver Resolver
}

func NewPrincipalMiddleware(resolver Resolver) *PrincipalMiddleware {
	return &PrincipalMiddleware{Resolver: resolver}
}

const principalContextKey = "principal"

// RequirePrincipal resolves the caller and aborts with 401 if it can't,
// mirroring FirebaseAuth's contract but without ever touching a token
// verifier itself.
func (m *PrincipalMiddleware) RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := m.Resolver.Resolve(c.Request.Context(), c.Request)
		if err != nil || p.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(principalContextKey, p)
		c.Next()
	}
}

// FromContext retrieves the Principal RequirePrincipal stored on c.
func FromContext(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// HeaderResolver reads the principal off headers set by a trusted
// upstream gateway that already verified the caller — the engine's
// injected-Principal boundary (SPEC_FULL §6, §9's AppConfig design
// note). Per the engine's explicit scope boundary, it performs no
// signature or token verification of its own.
type HeaderResolver struct {
	UserHeader      string
	ClientHeader    string
	SuperuserHeader string
}

// NewHeaderResolver builds a HeaderResolver with Chronicle's default
// header names.
func NewHeaderResolver() *HeaderResolver {
	return &HeaderResolver{
		UserHeader:      "X-Chronicle-User-Id",
		ClientHeader:    "X-Chronicle-Client-Id",
		SuperuserHeader: "X-Chronicle-Superuser",
	}
}

func (r *HeaderResolver) Resolve(ctx context.Context, req *http.Request) (Principal, error) {
	userID := req.Header.Get(r.UserHeader)
	if userID == "" {
		return Principal{}, errMissingPrincipal
	}
	return Principal{
		UserID:    userID,
		ClientID:  req.Header.Get(r.ClientHeader),
		Superuser: req.Header.Get(r.SuperuserHeader) == "true",
	}, nil
}

var errMissingPrincipal = missingPrincipalError{}

type missingPrincipalError struct{}

func (missingPrincipalError) Error() string { return "no principal header present" }
