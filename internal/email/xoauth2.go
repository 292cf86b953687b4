package email

import (
	"errors"
	"fmt"
	"net/smtp"

	"github.com/emersion/go-sasl"
)

const xoauth2 = "XOAUTH2"

func xoauth2Response(username, token string) []byte {
	return []byte(fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", username, token))
}

// xoauth2Client is the XOAUTH2 SASL mechanism for IMAP AUTHENTICATE
type xoauth2Client struct {
	username string
	token    string
}

// NewXOAuth2Client returns a sasl.Client authenticating username with an OAuth access token
func NewXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (a *xoauth2Client) Start() (string, []byte, error) {
	return xoauth2, xoauth2Response(a.username, a.token), nil
}

// Next receives the JSON error challenge sent after a rejected token.
// Answering with an empty response lets the server finish with NO.
func (a *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}

// xoauth2Auth is the XOAUTH2 mechanism for net/smtp
type xoauth2Auth struct {
	username     string
	token        string
	refreshToken string
}

func (a *xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS {
		return "", nil, errors.New("xoauth2 requires a TLS connection")
	}
	return xoauth2, xoauth2Response(a.username, a.token), nil
}

func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		return []byte{}, nil
	}
	return nil, nil
}
