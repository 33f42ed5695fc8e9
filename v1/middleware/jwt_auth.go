package middleware

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/uyenet/membership-backend/shared/utils"
	"github.com/uyenet/membership-backend/v1/models"
	authutils "github.com/uyenet/membership-backend/v1/utils"
)

// JWK is a single JSON Web Key as served by the identity provider
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the key set document
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWTAuthConfig configures token validation against the identity provider
type JWTAuthConfig struct {
	JWKSURL        string
	ExpectedIssuer string
	ValidClientIDs []string
	OrgName        string
	Timeout        time.Duration
}

// Validate checks that the configuration is usable
func (c *JWTAuthConfig) Validate() error {
	if c.JWKSURL == "" {
		return fmt.Errorf("JWKS URL is required")
	}
	if c.ExpectedIssuer == "" {
		return fmt.Errorf("expected issuer is required")
	}
	if len(c.ValidClientIDs) == 0 {
		return fmt.Errorf("at least one valid client ID is required")
	}
	for _, id := range c.ValidClientIDs {
		if id == "" {
			return fmt.Errorf("client IDs must not be empty")
		}
	}
	return nil
}

// JWTAuthMiddleware validates RS256 bearer tokens using the provider's JWKS
type JWTAuthMiddleware struct {
	config JWTAuthConfig
	client *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// jwksCacheTTL bounds how long fetched keys are reused before a refresh
const jwksCacheTTL = 15 * time.Minute

// skipAuthPaths are served without a token
var skipAuthPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// NewJWTAuthMiddleware creates the middleware. Keys are fetched lazily on
// the first request and cached.
func NewJWTAuthMiddleware(config JWTAuthConfig) *JWTAuthMiddleware {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &JWTAuthMiddleware{
		config: config,
		client: &http.Client{Timeout: timeout},
		keys:   map[string]*rsa.PublicKey{},
	}
}

// AuthenticateJWT rejects requests without a valid bearer token and stores
// the authenticated user in the request context
func (m *JWTAuthMiddleware) AuthenticateJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipAuthPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := authutils.ExtractBearerToken(r)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := m.validateToken(tokenString)
		if err != nil {
			slog.Warn("JWT validation failed", "path", r.URL.Path, "error", err)
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		user := userFromClaims(claims)
		ctx := authutils.SetAuthenticatedUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validateToken parses and verifies the token signature and claims
func (m *JWTAuthMiddleware) validateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		return m.publicKey(kid)
	}, jwt.WithIssuer(m.config.ExpectedIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("token claims are invalid")
	}

	if err := m.checkAudience(claims); err != nil {
		return nil, err
	}

	if m.config.OrgName != "" {
		if org, _ := claims["org_name"].(string); org != m.config.OrgName {
			return nil, fmt.Errorf("token organization %q is not accepted", org)
		}
	}

	return claims, nil
}

// checkAudience accepts a token whose aud or client_id matches any
// configured client ID
func (m *JWTAuthMiddleware) checkAudience(claims jwt.MapClaims) error {
	candidates := []string{}
	switch aud := claims["aud"].(type) {
	case string:
		candidates = append(candidates, aud)
	case []interface{}:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}
	if clientID, _ := claims["client_id"].(string); clientID != "" {
		candidates = append(candidates, clientID)
	}

	for _, candidate := range candidates {
		for _, valid := range m.config.ValidClientIDs {
			if candidate == valid {
				return nil
			}
		}
	}
	return fmt.Errorf("token audience is not an accepted client")
}

// publicKey returns the cached key for kid, refreshing the JWKS when the
// key is unknown or the cache is stale
func (m *JWTAuthMiddleware) publicKey(kid string) (*rsa.PublicKey, error) {
	m.mu.RLock()
	key, found := m.keys[kid]
	fresh := time.Since(m.fetchedAt) < jwksCacheTTL
	m.mu.RUnlock()
	if found && fresh {
		return key, nil
	}

	if err := m.refreshKeys(); err != nil {
		// A stale key is still better than failing outright
		if found {
			return key, nil
		}
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	key, found = m.keys[kid]
	if !found {
		return nil, fmt.Errorf("no key found for kid %q", kid)
	}
	return key, nil
}

// refreshKeys fetches and parses the JWKS document
func (m *JWTAuthMiddleware) refreshKeys() error {
	resp, err := m.client.Get(m.config.JWKSURL)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := map[string]*rsa.PublicKey{}
	for _, jwk := range jwks.Keys {
		if !strings.EqualFold(jwk.Kty, "RSA") {
			continue
		}
		key, err := jwk.rsaPublicKey()
		if err != nil {
			slog.Warn("Skipping unparsable JWK", "kid", jwk.Kid, "error", err)
			continue
		}
		keys[jwk.Kid] = key
	}

	m.mu.Lock()
	m.keys = keys
	m.fetchedAt = time.Now()
	m.mu.Unlock()
	return nil
}

// rsaPublicKey decodes the modulus and exponent of an RSA JWK
func (j JWK) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// userFromClaims maps token claims to the portal identity
func userFromClaims(claims jwt.MapClaims) *models.AuthenticatedUser {
	user := &models.AuthenticatedUser{}
	user.IdpUserID, _ = claims["sub"].(string)
	user.Email, _ = claims["email"].(string)
	user.Username, _ = claims["username"].(string)
	user.ClientID, _ = claims["client_id"].(string)
	user.OrgName, _ = claims["org_name"].(string)

	if rawRoles, ok := claims["roles"].([]interface{}); ok {
		for _, raw := range rawRoles {
			if role, ok := raw.(string); ok {
				user.Roles = append(user.Roles, models.Role(role))
			}
		}
	}
	return user
}
