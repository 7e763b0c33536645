package client

import (
	"errors"
	"net/http"
)

// Authenticator adds credentials to an outgoing request. Implementations must
// be safe for concurrent use.
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// AuthFunc adapts a function to Authenticator.
type AuthFunc func(req *http.Request) error

func (f AuthFunc) Authenticate(req *http.Request) error { return f(req) }

// BasicAuth sends a username and password with every request.
type BasicAuth struct {
	Username string
	Password string
}

func (a BasicAuth) Authenticate(req *http.Request) error {
	if a.Username == "" {
		return errors.New("basic auth: username is empty")
	}
	req.SetBasicAuth(a.Username, a.Password)
	return nil
}

// TokenAuth sends a bearer token.
type TokenAuth struct {
	Token string
}

func (a TokenAuth) Authenticate(req *http.Request) error {
	if a.Token == "" {
		return errors.New("token auth: token is empty")
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}

type noAuth struct{}

func (noAuth) Authenticate(*http.Request) error { return nil }
