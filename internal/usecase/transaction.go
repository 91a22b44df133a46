package usecase

import (
	"context"

	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/log"
)

// withTransaction runs fn inside a transaction on uow and commits when fn
// succeeds. A failing fn leaves nothing open: the session may already have
// rolled back on a query error, otherwise it is rolled back here.
func withTransaction(ctx context.Context, uow domain.UnitOfWork, fn func() error) error {
	if err := uow.BeginTransaction(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		rollback(ctx, uow)
		return err
	}
	return uow.CommitTransaction()
}

func rollback(ctx context.Context, uow domain.UnitOfWork) {
	if !uow.InTransaction() {
		return
	}
	if err := uow.RollbackTransaction(); err != nil {
		log.G(ctx).WithError(err).Warn("rollback failed")
	}
}
