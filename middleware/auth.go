package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"studydeck/pkg/logger"
)

type contextKey string

const (
	UserIDKey contextKey = "userID"
	RoleKey   contextKey = "role"

	RoleAdmin   = "admin"
	RoleVisitor = "visitor"
)

var errNoToken = errors.New("no token provided")

type Auth struct {
	Secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{Secret: []byte(secret)}
}

// IssueToken signs a token for userID carrying role.
func (a *Auth) IssueToken(userID, role string, ttl time.Duration) (string, error) {
	if len(a.Secret) == 0 {
		return "", errors.New("server is not configured to sign JWTs")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString(a.Secret)
}

func (a *Auth) parse(r *http.Request) (string, string, error) {
	// For WebSockets, tokens are often passed in the query string
	// because the browser's WebSocket API doesn't support custom headers.
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if tokenString == "" {
		return "", "", errNoToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if len(a.Secret) == 0 {
			return nil, fmt.Errorf("server is not configured to validate JWTs")
		}
		return a.Secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid or expired token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("could not parse token claims")
	}
	userID, ok := claims["sub"].(string)
	if !ok {
		return "", "", errors.New("user ID (sub) claim is missing or invalid")
	}
	role, _ := claims["role"].(string)
	if role != RoleAdmin {
		role = RoleVisitor
	}
	return userID, role, nil
}

func withIdentity(r *http.Request, userID, role string) *http.Request {
	ctx := context.WithValue(r.Context(), UserIDKey, userID)
	ctx = context.WithValue(ctx, RoleKey, role)
	return r.WithContext(ctx)
}

// AuthMiddleware rejects requests without a valid token.
func (a *Auth) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := a.parse(r)
		if err != nil {
			logger.Sugar.Debugf("Rejected request to %s: %v", r.URL.Path, err)
			WriteError(w, http.StatusUnauthorized, "Unauthorized: "+err.Error())
			return
		}
		next.ServeHTTP(w, withIdentity(r, userID, role))
	})
}

// OptionalAuth lets anonymous requests through as visitors. A token that is
// present but invalid is still rejected.
func (a *Auth) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := a.parse(r)
		if errors.Is(err, errNoToken) {
			next.ServeHTTP(w, withIdentity(r, "anonymous", RoleVisitor))
			return
		}
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "Unauthorized: "+err.Error())
			return
		}
		next.ServeHTTP(w, withIdentity(r, userID, role))
	})
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Role(r.Context()) != RoleAdmin {
			WriteError(w, http.StatusForbidden, "Forbidden: admin mode required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

func Role(ctx context.Context) string {
	role, _ := ctx.Value(RoleKey).(string)
	if role == "" {
		return RoleVisitor
	}
	return role
}

// WriteError writes {"error": msg} so clients can show it inline.
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
