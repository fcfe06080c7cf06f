package pool

import (
	"strings"
	"testing"
)

func TestIsolationPathDeterministic(t *testing.T) {
	a := IsolationPath("/tmp/terminals", "alpha")
	b := IsolationPath("/tmp/terminals", "alpha")
	if a != b {
		t.Fatalf("same account produced different paths: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "/tmp/terminals/") {
		t.Fatalf("path %s not under base dir", a)
	}
}

// Accounts whose ids sanitize to the same prefix must still get distinct
// directories, otherwise two terminals would share state.
func TestIsolationPathDistinctAccounts(t *testing.T) {
	ids := []string{
		"alpha",
		"Alpha",
		"alpha ",
		"alpha/",
		"alpha_",
		"alpha?",
		"session:1001",
		"session_1001",
		"1001",
		"",
		" ",
		strings.Repeat("x", 60),
		strings.Repeat("x", 61),
	}

	seen := make(map[string]string)
	for _, id := range ids {
		p := IsolationPath("/base", id)
		if prev, dup := seen[p]; dup {
			t.Fatalf("accounts %q and %q collided on path %s", prev, id, p)
		}
		seen[p] = id
	}
}

func TestIsolationPathSanitizesSeparators(t *testing.T) {
	p := IsolationPath("/base", "../../etc/passwd")
	if strings.Contains(strings.TrimPrefix(p, "/base/"), "/") {
		t.Fatalf("sanitized path still contains separators: %s", p)
	}
}
