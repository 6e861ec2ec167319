package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// AdminAccessKey names the key provisioned from the server configuration.
const AdminAccessKey = "admin"

// AccessKey grants read access to the audit log. Only the digest of the
// secret is stored, and a name holds at most one secret at a time.
type AccessKey struct {
	Name      string
	Digest    string
	Active    bool
	CreatedAt time.Time
	RotatedAt *time.Time
}

// DigestSecret returns the hex SHA-256 of the trimmed secret.
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(sum[:])
}
