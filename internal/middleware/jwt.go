package middleware

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-exercise-api/internal/utils"
)

const (
	localProfileID = "user_id"
	localRole      = "user_role"
)

var errMissingBearer = errors.New("bearer token missing")

// Identity is the caller resolved from a bearer token. A zero ProfileID is anonymous.
type Identity struct {
	ProfileID uint
	Role      string
}

// identityClaims accepts the profile id either as the subject or as a profile_id claim.
type identityClaims struct {
	ProfileID json.Number `json:"profile_id,omitempty"`
	Role      string      `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTProtected rejects requests without a valid HS256 bearer token.
func JWTProtected(secret string) fiber.Handler {
	return authenticate(secret, false)
}

// JWTOptional resolves the identity when a bearer token is sent and lets anonymous
// visitors through. An invalid token is still rejected.
func JWTOptional(secret string) fiber.Handler {
	return authenticate(secret, true)
}

func authenticate(secret string, optional bool) fiber.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c.Get(fiber.HeaderAuthorization))
		if errors.Is(err, errMissingBearer) && optional {
			return c.Next()
		}
		if err != nil {
			return utils.Fail(c, fiber.StatusUnauthorized, err.Error(), nil)
		}

		claims := &identityClaims{}
		token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid token", nil)
		}

		profileID, ok := claims.profileID()
		if !ok {
			return utils.Fail(c, fiber.StatusUnauthorized, "token does not name a profile", nil)
		}

		c.Locals(localProfileID, profileID)
		c.Locals(localRole, strings.ToLower(strings.TrimSpace(claims.Role)))
		return c.Next()
	}
}

func (c *identityClaims) profileID() (uint, bool) {
	candidates := []string{c.ProfileID.String(), c.Subject}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		parsed, err := strconv.ParseUint(candidate, 10, 64)
		if err == nil && parsed > 0 {
			return uint(parsed), true
		}
	}
	return 0, false
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingBearer
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("invalid token")
	}
	return token, nil
}

// IdentityFromCtx returns the identity the JWT middleware stored on the request.
func IdentityFromCtx(c *fiber.Ctx) Identity {
	identity := Identity{}
	if id, ok := c.Locals(localProfileID).(uint); ok {
		identity.ProfileID = id
	}
	if role, ok := c.Locals(localRole).(string); ok {
		identity.Role = role
	}
	return identity
}
