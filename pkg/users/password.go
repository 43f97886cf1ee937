package users

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches a bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UnsetPassword is the marker stored for accounts created without a password
func UnsetPassword(now time.Time) string {
	return fmt.Sprintf("NOT SET %d", now.Unix())
}

// DeletedPassword is the marker stored when an account is soft deleted
func DeletedPassword(now time.Time) string {
	return "USER DELETED ON " + now.Format("2006-01-02 15:04:05")
}
