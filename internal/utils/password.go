package utils

import "golang.org/x/crypto/bcrypt"

// PasswordService is the opaque hashing seam the rest of the portal
// consumes: hash a clear password into a digest, verify a digest
// against a clear password. Callers never see the primitive behind it.
type PasswordService interface {
	Hash(clear string) (string, error)
	Verify(digest, clear string) bool
}

// BcryptService implements PasswordService with bcrypt at a fixed
// cost. Also used for oauth client secrets, which gives the secret
// check a constant-time comparison for free.
type BcryptService struct {
	Cost int
}

// Hash returns the bcrypt digest of the clear text.
func (s BcryptService) Hash(clear string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(clear), s.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify safely compares a bcrypt digest and a clear password.
func (s BcryptService) Verify(digest, clear string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(clear)) == nil
}
