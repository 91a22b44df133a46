package persistence

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/zinrai/fabric-portal/internal/domain"
)

func expectAffected(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return errors.Wrap(domain.ErrNotFound, what)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
