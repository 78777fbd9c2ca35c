package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"

	apperrors "github.com/brightpath/safety-engine/internal/errors"
)

// Postgres error classes that indicate the operation may succeed on retry:
// connection exceptions, transaction rollbacks (serialization, deadlock),
// insufficient resources, and operator intervention.
var transientClasses = []pq.ErrorClass{"08", "40", "53", "57"}

const (
	queryCanceled   pq.ErrorCode = "57014"
	uniqueViolation pq.ErrorCode = "23505"
)

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// ClassifyError maps a storage error onto an AppError. AppErrors pass through
// unchanged; nil stays nil.
func ClassifyError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.Timeout(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == queryCanceled {
			return apperrors.Timeout(err)
		}
		for _, class := range transientClasses {
			if pqErr.Code.Class() == class {
				return apperrors.StorageUnavailable(err)
			}
		}
		return apperrors.Database(err)
	}

	if ctx != nil && ctx.Err() != nil {
		return apperrors.Timeout(err)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return apperrors.StorageUnavailable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperrors.Timeout(err)
		}
		return apperrors.StorageUnavailable(err)
	}
	if strings.Contains(err.Error(), "connection refused") {
		return apperrors.StorageUnavailable(err)
	}

	return apperrors.Database(err)
}
