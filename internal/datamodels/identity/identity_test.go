package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("guest")
	assert.False(t, ok)
}

func TestRoutes(t *testing.T) {
	assert.Equal(t, "/admin/login", RoleAdmin.LoginRoute())
	assert.Equal(t, "/login", RoleCustomer.LoginRoute())
	assert.Equal(t, "/login", Role("").LoginRoute())
	assert.Equal(t, "/admin", RoleAdmin.HomeRoute())
}

func TestIsCustomer(t *testing.T) {
	var none *Identity
	assert.False(t, none.IsCustomer())
	assert.False(t, (&Identity{ID: "1", Role: RoleAdmin, Token: "t"}).IsCustomer())
	assert.False(t, (&Identity{ID: "1", Role: RoleCustomer}).IsCustomer())
	assert.True(t, (&Identity{ID: "1", Role: RoleCustomer, Token: "t"}).IsCustomer())
}
