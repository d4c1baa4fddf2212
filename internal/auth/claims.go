// Package auth recovers caller identity from bearer credentials and supplies
// machine-to-machine credentials for outbound gateway calls.
package auth

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeClaims decodes the payload segment of a bearer token without
// verifying its signature. The token is a capability, not a proof: the
// upstream runtime has already authenticated the caller, and this service
// only needs the claims to recover a stable user identifier.
//
// Only the middle segment is decoded, so a token with a corrupt header or
// signature still yields its claims. Any malformed payload (missing segment,
// bad base64url, invalid JSON) yields an empty claim set rather than an
// error. Downstream identity checks then fail on the missing subject, which
// keeps the failure mode closed without a separate validation path.
func DecodeClaims(token string) jwt.MapClaims {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return jwt.MapClaims{}
	}
	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return jwt.MapClaims{}
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return jwt.MapClaims{}
	}
	return claims
}

// subjectClaims is the fallback chain for the user identifier. Different
// identity-provider configurations populate different claims; Cognito uses
// "sub" but federated pools may only carry one of the others.
var subjectClaims = []string{"sub", "username", "email", "user_id"}

// Subject returns the stable user identifier from a decoded claim set, or ""
// when none of the known claims carries a non-empty string.
func Subject(claims jwt.MapClaims) string {
	for _, key := range subjectClaims {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
