package pool

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// IsolationPath maps an account id to its terminal state directory. It is a
// pure function of the account id: restarting an account reuses its prior
// directory, and no two ids can map to the same path. The readable prefix is
// sanitized for the filesystem; the hash suffix keeps the mapping injective
// even when two ids sanitize to the same prefix.
func IsolationPath(baseDir, accountID string) string {
	sum := sha256.Sum256([]byte(accountID))
	name := sanitize(accountID) + "-" + hex.EncodeToString(sum[:])[:10]
	return filepath.Join(baseDir, name)
}

func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if len(s) > 48 {
		s = s[:48]
	}
	if s == "" {
		s = "acct"
	}
	return s
}
