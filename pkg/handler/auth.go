package handler

import (
	"github.com/foomo/keel/net/http/middleware"
	"github.com/pkg/errors"
)

// ErrNoCredentials is returned when the handler would be served without authentication.
var ErrNoCredentials = errors.New("no http credentials configured, set a token, basic auth or disable auth explicitly")

// AuthConfig guards the handler, snapshots and archives are only served to authenticated requests.
type AuthConfig struct {
	// Disabled serves without authentication
	Disabled bool `mapstructure:"disabled"`
	// Token is expected as "Authorization: Bearer <token>"
	Token string `mapstructure:"token"`
	// Username and PasswordHash (bcrypt) enable basic auth
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Realm        string `mapstructure:"realm"`
}

// Middlewares returns the authentication middleware for the handler.
func (c AuthConfig) Middlewares() ([]middleware.Middleware, error) {
	basic := c.Username != "" || c.PasswordHash != ""
	switch {
	case c.Disabled:
		return nil, nil
	case c.Token != "" && basic:
		return nil, errors.New("configure either a token or basic auth, not both")
	case c.Token != "":
		return []middleware.Middleware{middleware.TokenAuth(c.Token)}, nil
	case basic:
		if c.Username == "" || c.PasswordHash == "" {
			return nil, errors.New("basic auth requires a username and a password hash")
		}
		return []middleware.Middleware{
			middleware.BasicAuth(c.Username, []byte(c.PasswordHash), middleware.BasicAuthWithRealm(c.realm())),
		}, nil
	default:
		return nil, ErrNoCredentials
	}
}

func (c AuthConfig) realm() string {
	if c.Realm == "" {
		return "caretaker"
	}
	return c.Realm
}
