package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// How long an OAuth state token remains valid.
const stateLifetime = 10 * time.Minute

// ErrBadState is returned for tampered, malformed, or expired state tokens.
var ErrBadState = errors.New("invalid oauth state")

// StateSigner binds provider OAuth callbacks to the user who started the
// flow. The state token carries the user id and an expiry, signed so the
// callback can trust them without server-side storage.
type StateSigner struct {
	key []byte
	now func() time.Time
}

// NewStateSigner builds a signer with the shared HMAC key.
func NewStateSigner(key string) *StateSigner {
	return &StateSigner{key: []byte(key), now: time.Now}
}

// Issue creates a state token for the user.
func (s *StateSigner) Issue(userID string) string {
	expires := s.now().UTC().Add(stateLifetime).Unix()
	payload := fmt.Sprintf("%s|%d", userID, expires)
	return encode(payload) + "." + encode(s.sign(payload))
}

// Validate checks the token's signature and expiry and returns the user id it
// was issued for.
func (s *StateSigner) Validate(token string) (string, error) {
	payloadPart, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrBadState
	}
	payload, err := decode(payloadPart)
	if err != nil {
		return "", ErrBadState
	}
	sig, err := decode(sigPart)
	if err != nil {
		return "", ErrBadState
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(payload))) {
		return "", ErrBadState
	}

	userID, expiresPart, ok := strings.Cut(payload, "|")
	if !ok || userID == "" {
		return "", ErrBadState
	}
	expires, err := strconv.ParseInt(expiresPart, 10, 64)
	if err != nil || s.now().UTC().Unix() > expires {
		return "", ErrBadState
	}
	return userID, nil
}

func (s *StateSigner) sign(payload string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	return string(mac.Sum(nil))
}

func encode(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}

func decode(v string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
