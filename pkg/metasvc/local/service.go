// Package local implements a reference metadata service for development
// and testing: it issues and validates the same compact JWTs the metadata
// client expects, without needing a real external service running.
package local

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fs9fs/fs9/pkg/auth"
)

// Claims is the JWT claim shape issued and accepted by this service,
// matching the token claims required by §6.2: sub, ns, roles, iat, exp.
type Claims struct {
	jwt.RegisteredClaims
	Namespace string   `json:"ns"`
	Roles     []string `json:"roles"`
}

// Service issues and validates HS256 JWTs for local development and
// integration tests, standing in for the external metadata service that
// production deployments point metaclient.Client at.
type Service struct {
	secret []byte
	issuer string
}

// New constructs a Service signing tokens with secret (must be at least
// 32 bytes, matching the JWT service convention used elsewhere in this
// codebase).
func New(secret, issuer string) (*Service, error) {
	if len(secret) < 32 {
		return nil, errors.New("metasvc secret must be at least 32 characters")
	}
	if issuer == "" {
		issuer = "fs9"
	}
	return &Service{secret: []byte(secret), issuer: issuer}, nil
}

// IssueToken mints a token for (tenant, user, roles) valid for ttl.
func (s *Service) IssueToken(tenant, user string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Namespace: tenant,
		Roles:     roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies tokenString, returning the resolved Claims.
func (s *Service) Validate(tokenString string) (auth.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return auth.Claims{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return auth.Claims{}, errors.New("invalid token")
	}

	return auth.Claims{
		Tenant: claims.Namespace,
		User:   claims.Subject,
		Roles:  claims.Roles,
		Expiry: claims.ExpiresAt.Time,
	}, nil
}

// ServeHTTP implements the single POST /validate endpoint the metaclient
// calls out to, so this service can be dropped in behind metaclient.Client
// unmodified for local development or tests.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(authz) <= len(prefix) || authz[:len(prefix)] != prefix {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	claims, err := s.Validate(authz[len(prefix):])
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"ns":%q,"sub":%q,"roles":%s,"exp":%q}`,
		claims.Tenant, claims.User, rolesJSON(claims.Roles), claims.Expiry.Format(time.RFC3339))
}

func rolesJSON(roles []string) string {
	out := "["
	for i, r := range roles {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", r)
	}
	return out + "]"
}
