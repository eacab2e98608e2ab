package http

import (
	"encoding/base64"
	"net/http"
)

// AuthConfig represents an authentication strategy.
type AuthConfig interface {
	Apply(req *http.Request)
}

// NoAuth represents no authentication.
type NoAuth struct{}

func (a NoAuth) Apply(req *http.Request) {}

// BasicAuth uses HTTP Basic Authentication. The FileMaker Data API uses it
// for opening sessions and for the server-level databases listing.
type BasicAuth struct {
	Username string
	Password string
}

// Apply adds a Basic auth header to the request.
func (a BasicAuth) Apply(req *http.Request) {
	if a.Username == "" && a.Password == "" {
		return
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	req.Header.Set("Authorization", "Basic "+credentials)
}

// BearerToken uses Bearer token authentication. Session tokens returned by
// the Data API login call are applied this way.
type BearerToken struct {
	Token string
}

// Apply adds a Bearer token header to the request.
func (a BearerToken) Apply(req *http.Request) {
	if a.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
}
