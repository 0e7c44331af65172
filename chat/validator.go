package chat

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Validator checks login credentials. It returns the user key to register
// and whether the credentials are valid.
type Validator interface {
	Validate(username, password string) (key string, ok bool)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(username, password string) (string, bool)

// Validate implements Validator.
func (f ValidatorFunc) Validate(username, password string) (string, bool) {
	return f(username, password)
}

// PasswordValidator accepts users whose password matches a bcrypt hash.
type PasswordValidator struct {
	hashes map[string][]byte
}

// NewPasswordValidator creates a validator from username to bcrypt hash.
func NewPasswordValidator(hashes map[string]string) (*PasswordValidator, error) {
	v := &PasswordValidator{hashes: make(map[string][]byte, len(hashes))}
	for user, hash := range hashes {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("password hash of %q: %w", user, err)
		}
		v.hashes[user] = []byte(hash)
	}
	return v, nil
}

// Validate implements Validator.
func (v *PasswordValidator) Validate(username, password string) (string, bool) {
	hash, ok := v.hashes[username]
	if !ok {
		return "", false
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", false
	}
	return username, true
}

// AnyValidator accepts every non-empty username whatever the password.
// Use it for development only.
func AnyValidator() Validator {
	return ValidatorFunc(func(username, _ string) (string, bool) {
		return username, username != ""
	})
}

// FirstOf tries validators in order and returns the first acceptance.
func FirstOf(validators ...Validator) Validator {
	return ValidatorFunc(func(username, password string) (string, bool) {
		for _, v := range validators {
			if v == nil {
				continue
			}
			if key, ok := v.Validate(username, password); ok {
				return key, true
			}
		}
		return "", false
	})
}

// HashPassword returns the bcrypt hash of password at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
