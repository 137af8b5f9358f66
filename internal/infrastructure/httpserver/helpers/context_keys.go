package helpers

import (
	"github.com/labstack/echo/v4"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
)

type ctxKey string

const (
	keyIdentity  ctxKey = "identity"
	keyPrincipal ctxKey = "principal"
)

func SetIdentity(c echo.Context, id *auth.Identity) { c.Set(string(keyIdentity), id) }
func GetIdentityRaw(c echo.Context) (*auth.Identity, bool) {
	v := c.Get(string(keyIdentity))
	id, ok := v.(*auth.Identity)
	return id, ok && id != nil
}

// SetPrincipal memoizes the loaded principal for the rest of the request.
func SetPrincipal(c echo.Context, p *access.Principal) { c.Set(string(keyPrincipal), p) }
func GetPrincipalRaw(c echo.Context) (*access.Principal, bool) {
	v := c.Get(string(keyPrincipal))
	p, ok := v.(*access.Principal)
	return p, ok && p != nil
}
