package bridge

import (
	"os"
	"sync"

	"github.com/denisbrodbeck/machineid"
)

var (
	fpOnce sync.Once
	fp     string
)

// Fingerprint returns a stable host identifier sent in the hello frame so the
// router can tell terminal sessions from different hosts apart. Falls back to
// the hostname when the machine id is unavailable (containers, stripped VMs).
func Fingerprint() string {
	fpOnce.Do(func() {
		id, err := machineid.ProtectedID("terminal-core")
		if err != nil {
			host, herr := os.Hostname()
			if herr != nil {
				host = "unknown"
			}
			id = host
		}
		fp = id
	})
	return fp
}
