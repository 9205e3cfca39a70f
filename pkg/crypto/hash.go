package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования
var (
	ErrEmptyToken    = errors.New("token cannot be empty")
	ErrTokenMismatch = errors.New("token does not match hash")
	ErrTokenTooLong  = errors.New("token exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость bcrypt по умолчанию.
// Выше значение = дольше хеширование = устойчивее к перебору.
const DefaultCost = 12

// MaxTokenLength - предел длины входа для bcrypt (72 байта)
const MaxTokenLength = 72

// HashToken хеширует операторский API токен с использованием bcrypt.
// Salt генерируется автоматически и входит в итоговый хеш.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	if len(token) > MaxTokenLength {
		return "", ErrTokenTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifyToken проверяет токен против сохранённого хеша
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrTokenMismatch
		}
		return err
	}

	return nil
}
