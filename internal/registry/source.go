// Package registry exposes the independently evolved account tables behind
// one provider interface. The scheduler merges providers by set union and
// stays agnostic to how many exist.
package registry

import "context"

// Namespace distinguishes the two account id spaces. They are never unified;
// only presence is merged.
type Namespace string

const (
	// NamespaceSession covers the legacy DB-backed registry (integer logins).
	NamespaceSession Namespace = "session"
	// NamespaceWorker covers the pool-managed registry (string account ids).
	NamespaceWorker Namespace = "worker"
)

// AccountRef names one account in one namespace. Key is the string form of
// the id (the decimal login for sessions).
type AccountRef struct {
	Namespace Namespace
	Key       string
}

func (r AccountRef) String() string {
	return string(r.Namespace) + ":" + r.Key
}

// Source lists the accounts currently known to one registry.
type Source interface {
	Namespace() Namespace
	ListAccounts(ctx context.Context) ([]AccountRef, error)
}
