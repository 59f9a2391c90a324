package emulator

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var b64 = base64.RawURLEncoding

// AccessClaims is the payload carried by an access token.
type AccessClaims struct {
	Subject  string `json:"sub"`
	Email    string `json:"email"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
}

var errInvalidToken = errors.New("invalid token")

// signAccessToken creates a compact HS256 token for the given account.
func signAccessToken(account Account, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Subject:  account.ID,
		Email:    account.Email,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(ttl).Unix(),
	}
	header, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := b64.EncodeToString(header) + "." + b64.EncodeToString(payload)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(unsigned))
	return unsigned + "." + b64.EncodeToString(mac.Sum(nil)), nil
}

// parseAccessToken verifies the signature and expiry and returns the claims.
func parseAccessToken(token string, secret []byte) (AccessClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return AccessClaims{}, errInvalidToken
	}
	unsigned := parts[0] + "." + parts[1]
	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return AccessClaims{}, errInvalidToken
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(unsigned))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return AccessClaims{}, errInvalidToken
	}
	payload, err := b64.DecodeString(parts[1])
	if err != nil {
		return AccessClaims{}, errInvalidToken
	}
	var claims AccessClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return AccessClaims{}, errInvalidToken
	}
	if claims.Expiry != 0 && time.Now().Unix() > claims.Expiry {
		return AccessClaims{}, errInvalidToken
	}
	return claims, nil
}
