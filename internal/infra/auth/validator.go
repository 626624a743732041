package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/demonlist-history/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// BaseValidator проверяет RS256 токены, выпущенные хостом демонлиста.
// Сервис не хранит приватный ключ и токены не выдает.
type BaseValidator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

// NewBaseValidator; issuer пустой — издатель не проверяется.
func NewBaseValidator(pubKey *rsa.PublicKey, issuer string) *BaseValidator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &BaseValidator{publicKey: pubKey, parser: jwt.NewParser(opts...)}
}

// VerifyToken принимает значение заголовка Authorization ("Bearer <jwt>") или голый токен.
func (v *BaseValidator) VerifyToken(header string) (*domain.CustomClaims, error) {
	tokenStr := strings.TrimSpace(header)
	if scheme, rest, ok := strings.Cut(tokenStr, " "); ok {
		if !strings.EqualFold(scheme, "Bearer") {
			return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidToken, scheme)
		}
		tokenStr = strings.TrimSpace(rest)
	}
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	claims := &domain.CustomClaims{}
	token, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRSAPublicKey превращает PEM в объект для проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
