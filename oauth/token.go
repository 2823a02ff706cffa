package oauth

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// encodeToken serializes the token pair to store it as a secret
func encodeToken(token *oauth2.Token) (string, error) {
	data, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("cannot encode token: %w", err)
	}
	return string(data), nil
}

// decodeToken reads a token pair; a secret that is not JSON is a bare refresh token
func decodeToken(secret string) (*oauth2.Token, error) {
	secret = strings.TrimSpace(secret)
	if !strings.HasPrefix(secret, "{") {
		return &oauth2.Token{RefreshToken: secret}, nil
	}
	token := &oauth2.Token{}
	err := json.Unmarshal([]byte(secret), token)
	if err != nil {
		return nil, fmt.Errorf("cannot decode stored token: %w", err)
	}
	return token, nil
}
