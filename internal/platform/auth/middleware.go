package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/wellness/booking/internal/domain/booking"
)

type contextKey string

const (
	SessionKey contextKey = "session"
	TokenKey   contextKey = "token"
)

// Claims is the token payload the booking portal accepts. The subject is
// the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Role                string `json:"role"`
	SpecialistProfileID string `json:"specialist_profile_id,omitempty"`
	FirstName           string `json:"first_name,omitempty"`
	LastName            string `json:"last_name,omitempty"`
	Email               string `json:"email,omitempty"`
	Phone               string `json:"phone,omitempty"`
}

// Session converts the claims into a booking session.
func (c Claims) Session() booking.Session {
	return booking.Session{
		UserID:              c.Subject,
		Role:                booking.Role(c.Role),
		SpecialistProfileID: c.SpecialistProfileID,
		FirstName:           c.FirstName,
		LastName:            c.LastName,
		Email:               c.Email,
		Phone:               c.Phone,
	}
}

type JWTConfig struct {
	Issuer   string
	Audience string
	// SigningKey is the shared HS256 secret.
	SigningKey []byte
}

// SessionMiddleware resolves the caller's session. A request without an
// Authorization header continues as a guest; a present but invalid token
// is rejected with 401.
func SessionMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				setSession(c, booking.GuestSession(), "")
				return next(c)
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}
			tokenStr := strings.TrimSpace(parts[1])

			claims, err := ParseToken(cfg, tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			sess := claims.Session()
			if !sess.Role.Valid() || sess.Role == booking.RoleGuest || sess.UserID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token carries no usable role")
			}

			setSession(c, sess, tokenStr)
			return next(c)
		}
	}
}

// DevSessionMiddleware lets local development pick a role through the
// X-Dev-Role and X-Dev-User headers. Real tokens are still honoured.
func DevSessionMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	strict := SessionMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		checked := strict(next)
		return func(c echo.Context) error {
			role := booking.Role(c.Request().Header.Get("X-Dev-Role"))
			if c.Request().Header.Get("Authorization") != "" || role == "" {
				return checked(c)
			}
			if !role.Valid() {
				return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown dev role %q", role))
			}
			user := c.Request().Header.Get("X-Dev-User")
			if user == "" {
				user = "dev-" + string(role)
			}
			sess := booking.Session{UserID: user, Role: role}
			if role == booking.RoleGuest {
				sess = booking.GuestSession()
			}
			if role == booking.RoleSpecialist {
				sess.SpecialistProfileID = c.Request().Header.Get("X-Dev-Specialist")
			}
			setSession(c, sess, "")
			return next(c)
		}
	}
}

// ParseToken validates tokenStr and returns its claims.
func ParseToken(cfg JWTConfig, tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

// SignSession issues an HS256 token for sess that expires after ttl.
func SignSession(cfg JWTConfig, sess booking.Session, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:                string(sess.Role),
		SpecialistProfileID: sess.SpecialistProfileID,
		FirstName:           sess.FirstName,
		LastName:            sess.LastName,
		Email:               sess.Email,
		Phone:               sess.Phone,
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

func setSession(c echo.Context, sess booking.Session, token string) {
	c.Set(string(SessionKey), sess)
	ctx := context.WithValue(c.Request().Context(), SessionKey, sess)
	if token != "" {
		ctx = context.WithValue(ctx, TokenKey, token)
	}
	c.SetRequest(c.Request().WithContext(ctx))
}

// SessionFromContext returns the session set by the middleware, or a guest.
func SessionFromContext(ctx context.Context) booking.Session {
	sess, ok := ctx.Value(SessionKey).(booking.Session)
	if !ok {
		return booking.GuestSession()
	}
	return sess
}

// TokenFromContext returns the raw bearer token, if any.
func TokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(TokenKey).(string)
	return tok
}
