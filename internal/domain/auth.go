package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — claims токена, выпущенного хостом (сервис токены не выдает, только проверяет).
type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "demonlist:refresh": true
	jwt.RegisteredClaims
}

func (c *CustomClaims) HasScope(scope string) bool {
	return c.Scopes["admin"] || c.Scopes[scope]
}
