package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	TeacherIDKey  contextKey = "teacher_id"
	LocationIDKey contextKey = "location_id"
)

type JWTAuth struct {
	Secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{Secret: []byte(secret)}
}

// GenerateAccessToken issues a console token for a teacher at one school location.
func (j *JWTAuth) GenerateAccessToken(teacherID string, locationID int, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"teacher_id":  teacherID,
		"location_id": locationID,
		"exp":         time.Now().Add(ttl).Unix(),
		"iat":         time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// ParseToken verifies an HS256 token and returns its teacher and location.
func (j *JWTAuth) ParseToken(tokenStr string) (string, int, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	})
	if err != nil {
		return "", 0, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", 0, jwt.ErrTokenInvalidClaims
	}

	teacherID, _ := claims["teacher_id"].(string)
	if teacherID == "" {
		return "", 0, jwt.ErrTokenRequiredClaimMissing
	}

	// numeric claims decode as float64
	locationID := 0
	if loc, ok := claims["location_id"].(float64); ok {
		locationID = int(loc)
	}
	return teacherID, locationID, nil
}

// Middleware validates the bearer token and attaches teacher and location to the context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		teacherID, locationID, err := j.ParseToken(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			} else {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			}
			return
		}

		ctx := context.WithValue(r.Context(), TeacherIDKey, teacherID)
		ctx = context.WithValue(ctx, LocationIDKey, locationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetTeacherID(ctx context.Context) string {
	id, _ := ctx.Value(TeacherIDKey).(string)
	return id
}

func GetLocationID(ctx context.Context) int {
	id, _ := ctx.Value(LocationIDKey).(int)
	return id
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": GetRequestID(r.Context()),
		},
	})
}
