package review

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every way an action token can fail validation.
// A single error keeps the action endpoint from leaking whether a token
// was malformed, forged, or merely expired.
var ErrInvalidToken = errors.New("invalid action token")

// Action is a review decision carried inside an action link.
type Action string

const (
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionRegenerate Action = "regenerate"
)

func (a Action) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionRegenerate:
		return true
	}
	return false
}

// ActionClaims binds an action to one specific draft.
type ActionClaims struct {
	Action    string `json:"action"`
	ContentID string `json:"content_id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates the signed one-click links embedded in
// review emails.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("action token secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

func (t *TokenIssuer) Issue(action Action, contentID string) (string, error) {
	if !action.Valid() {
		return "", fmt.Errorf("unknown action %q", action)
	}
	claims := &ActionClaims{
		Action:    string(action),
		ContentID: contentID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *TokenIssuer) Validate(tokenString string) (Action, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify the signing method to prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*ActionClaims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidToken
	}
	action := Action(claims.Action)
	if !action.Valid() || claims.ContentID == "" {
		return "", "", ErrInvalidToken
	}
	return action, claims.ContentID, nil
}
