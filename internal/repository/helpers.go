package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound turns sql.ErrNoRows into a nil result without error. Find*
// lookups and conditional updates use it so callers decide what "missing"
// means.
//
//	var alert model.Alert
//	err := r.db.GetContext(ctx, &alert, query, args...)
//	return HandleNotFound(&alert, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
