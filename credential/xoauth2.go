package credential

import "github.com/emersion/go-sasl"

type xoauth2Client struct {
	username string
	token    string
}

// NewXOAuth2Client implements the XOAUTH2 mechanism used by Google and Microsoft
func NewXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{
		username: username,
		token:    token,
	}
}

func (c *xoauth2Client) Start() (mech string, ir []byte, err error) {
	return string(MechanismXOAuth2), []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01"), nil
}

// Next answers the error challenge with an empty response, so the server can finish the exchange
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}
