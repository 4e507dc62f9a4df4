package zmailbox

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sqs/go-xoauth2"
)

// authenticator attaches credentials to outgoing requests.
type authenticator interface {
	// context adds credentials to the request context header. It fails when
	// the credentials are known to be unusable.
	context(c map[string]any) error
	header(r *http.Request)
}

func newAuthenticator(o Options) (authenticator, error) {
	if o.AuthToken == "" {
		return nil, nil
	}
	switch o.AuthMode {
	case AuthToken, "":
		return tokenAuth{token: o.AuthToken}, nil
	case AuthJWT:
		a, err := newJWTAuth(o.AuthToken)
		if err != nil {
			return nil, err
		}
		return a, nil
	case AuthXOAuth2:
		if o.Account == "" {
			return nil, newClientError(ClientInvalidRequest, "xoauth2 requires an account name")
		}
		return xoauth2Auth{ir: xoauth2.XOAuth2String(o.Account, o.AuthToken)}, nil
	default:
		return nil, newClientError(ClientInvalidRequest, "unknown auth mode %q", o.AuthMode)
	}
}

// tokenAuth sends a server-issued auth token in the context header.
type tokenAuth struct {
	token string
}

func (a tokenAuth) context(c map[string]any) error {
	c["authToken"] = a.token
	return nil
}

func (a tokenAuth) header(*http.Request) {}

// jwtAuth sends a JWT as a bearer token. The token is only parsed to read
// its expiry; the server verifies the signature.
type jwtAuth struct {
	token   string
	expires time.Time
}

func newJWTAuth(token string) (*jwtAuth, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, newClientError(ClientInvalidRequest, "parsing jwt: %v", err)
	}
	a := &jwtAuth{token: token}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, newClientError(ClientInvalidRequest, "parsing jwt expiry: %v", err)
	}
	if exp != nil {
		a.expires = exp.Time
	}
	return a, nil
}

func (a *jwtAuth) context(c map[string]any) error {
	if !a.expires.IsZero() && !time.Now().Before(a.expires) {
		return newClientError(ClientAuthExpired, "jwt expired at %s", a.expires.Format(time.RFC3339))
	}
	c["jwtToken"] = a.token
	return nil
}

func (a *jwtAuth) header(r *http.Request) {
	r.Header.Set("Authorization", "Bearer "+a.token)
}

// xoauth2Auth presents an OAuth2 access token as a SASL XOAUTH2 initial
// response.
type xoauth2Auth struct {
	ir string
}

func (a xoauth2Auth) context(map[string]any) error { return nil }

func (a xoauth2Auth) header(r *http.Request) {
	r.Header.Set("Authorization", "XOAUTH2 "+a.ir)
}

// IsAuthError reports whether err means the credentials must be renewed.
func IsAuthError(err error) bool {
	if IsFault(err, FaultAuthExpired) || IsFault(err, FaultAuthRequired) {
		return true
	}
	var c *ClientError
	return errors.As(err, &c) && c.Code == ClientAuthExpired
}
