package memstore

import (
	"context"
	"fmt"
)

type txCtxKey struct{}

type txState struct {
	deferred bool
}

func txFromCtx(ctx context.Context) *txState {
	tx, _ := ctx.Value(txCtxKey{}).(*txState)
	return tx
}

// TxManager gives RunInTx semantics over a Store: on error the store is
// restored to its state before the outermost RunInTx. Nested calls join the
// outer transaction.
type TxManager struct {
	s *Store
}

// RunInTx executes fn in a transaction. Deferred constraints are checked
// before commit.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFromCtx(ctx) != nil {
		return fn(ctx)
	}

	m.s.mu.Lock()
	saved := m.s.st.clone()
	m.s.mu.Unlock()

	rollback := func() {
		m.s.mu.Lock()
		m.s.st = saved
		m.s.mu.Unlock()
	}

	defer func() {
		if r := recover(); r != nil {
			rollback()
			panic(r)
		}
	}()

	tx := &txState{}
	if err := fn(context.WithValue(ctx, txCtxKey{}, tx)); err != nil {
		rollback()
		return err
	}

	if tx.deferred {
		m.s.mu.Lock()
		refErr := m.s.checkRefs()
		m.s.mu.Unlock()
		if refErr != nil {
			rollback()
			return fmt.Errorf("commit transaction: %w", refErr)
		}
	}
	return nil
}
