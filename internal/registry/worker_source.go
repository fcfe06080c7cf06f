package registry

import (
	"context"

	"terminal-core/internal/pool"
)

// WorkerSource reads the current worker pool: one ref per running handle.
type WorkerSource struct {
	manager *pool.Manager
}

func NewWorkerSource(manager *pool.Manager) *WorkerSource {
	return &WorkerSource{manager: manager}
}

func (w *WorkerSource) Namespace() Namespace { return NamespaceWorker }

// ListAccounts never fails: the pool is in-memory.
func (w *WorkerSource) ListAccounts(ctx context.Context) ([]AccountRef, error) {
	ids := w.manager.ListRunning()
	refs := make([]AccountRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, AccountRef{Namespace: NamespaceWorker, Key: id})
	}
	return refs, nil
}
