package session

import (
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var cookieTokenPattern = regexp.MustCompile(`(?i)onlinepharmacy=([^;]+)`)

// ExtractToken unwraps a bearer token from whatever the backend put in the
// envelope: a bare JWT, a full Set-Cookie style string, or a cookie list.
// The layered fallbacks are a defensive contract against backend drift, not
// a protocol this client defines.
func ExtractToken(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if match := cookieTokenPattern.FindStringSubmatch(trimmed); len(match) == 2 {
		return strings.TrimSpace(match[1])
	}

	if !strings.Contains(trimmed, ";") && looksLikeJWT(trimmed) {
		return trimmed
	}

	return strings.TrimSpace(strings.SplitN(trimmed, ";", 2)[0])
}

func looksLikeJWT(value string) bool {
	if strings.Count(value, ".") != 2 {
		return false
	}
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(value, jwt.MapClaims{})
	return err == nil
}
