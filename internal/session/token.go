// Package session разбирает учётные данные аутентифицированной сессии.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken возвращается, если токен не удалось разобрать или в нём нет идентификатора пользователя.
var ErrInvalidToken = errors.New("invalid session token")

// Token хранит bearer-токен сессии и сведения, извлечённые из его claims.
// Подпись не проверяется: клиент не владеет ключом, проверку выполняет сервер.
type Token struct {
	raw       string
	subject   string
	expiresAt time.Time
}

// Parse разбирает JWT и извлекает идентификатор пользователя (sub или uid) и срок действия.
func Parse(raw string) (*Token, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		if uid, ok := claims["uid"].(string); ok {
			subject = uid
		}
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	t := &Token{raw: raw, subject: subject}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if exp != nil {
		t.expiresAt = exp.Time
	}

	return t, nil
}

// Has сообщает, действителен ли токен на момент now.
func (t *Token) Has(now time.Time) bool {
	if t == nil || t.raw == "" {
		return false
	}
	return t.expiresAt.IsZero() || now.Before(t.expiresAt)
}

// Subject возвращает идентификатор пользователя.
func (t *Token) Subject() string {
	return t.subject
}

// BearerString возвращает значение заголовка Authorization.
func (t *Token) BearerString() string {
	return "Bearer " + t.raw
}
