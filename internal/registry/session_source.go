package registry

import (
	"context"
	"strconv"

	"terminal-core/pkg/db"
)

// SessionSource reads the legacy terminal session table.
type SessionSource struct {
	database *db.Database
}

func NewSessionSource(database *db.Database) *SessionSource {
	return &SessionSource{database: database}
}

func (s *SessionSource) Namespace() Namespace { return NamespaceSession }

// ListAccounts returns one ref per active legacy session.
func (s *SessionSource) ListAccounts(ctx context.Context) ([]AccountRef, error) {
	logins, err := s.database.ListActiveSessionLogins(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]AccountRef, 0, len(logins))
	for _, login := range logins {
		refs = append(refs, AccountRef{
			Namespace: NamespaceSession,
			Key:       strconv.FormatInt(login, 10),
		})
	}
	return refs, nil
}
