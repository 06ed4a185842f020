package user

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/grabtube/grabtube/server/config"
)

const cookieName = "grabtube_token"

var errInvalidCredentials = errors.New("invalid username or password")

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies the configured credentials and issues a signed session
// token, both as a cookie and in the response body.
func Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	auth := config.Instance().Authentication

	hash := sha256.Sum256([]byte(req.Password))

	var (
		userOk = subtle.ConstantTimeCompare([]byte(req.Username), []byte(auth.Username)) == 1
		passOk = subtle.ConstantTimeCompare([]byte(hex.EncodeToString(hash[:])), []byte(auth.PasswordHash)) == 1
	)

	if !userOk || !passOk {
		slog.Warn("failed login attempt", slog.String("username", req.Username))
		http.Error(w, errInvalidCredentials.Error(), http.StatusUnauthorized)
		return
	}

	expiresAt := time.Now().Add(time.Hour * 24 * 30)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   req.Username,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})

	signed, err := token.SignedString([]byte(auth.JWTSecret))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    signed,
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})

	json.NewEncoder(w).Encode(map[string]string{"token": signed})
}

// Logout clears the session cookie.
func Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	})

	w.WriteHeader(http.StatusOK)
}

// TokenFromRequest extracts the session token from the cookie or the
// Authorization header.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}

	return ""
}

// ValidateToken parses and verifies a session token.
func ValidateToken(token string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.Instance().Authentication.JWTSecret), nil
	})
	if err != nil {
		return err
	}

	if !parsed.Valid {
		return errors.New("invalid token")
	}

	return nil
}
