package mailing

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidToken = errors.New("invalid unsubscribe token")

// UnsubscribeToken encodes a lead reference for unsubscribe links.
func UnsubscribeToken(leadID, email, workspaceID string) string {
	raw := leadID + ":" + email + ":" + workspaceID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseUnsubscribeToken reverses UnsubscribeToken.
func ParseUnsubscribeToken(token string) (leadID, email, workspaceID string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", "", ErrInvalidToken
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", ErrInvalidToken
	}
	return parts[0], parts[1], parts[2], nil
}

// UnsubscribeURL is the public link for a lead's unsubscribe token.
func UnsubscribeURL(appURL, leadID, email, workspaceID string) string {
	return strings.TrimRight(appURL, "/") + "/unsubscribe?token=" +
		url.QueryEscape(UnsubscribeToken(leadID, email, workspaceID))
}
