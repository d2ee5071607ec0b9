package assignment

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	apperrors "advisor-matching/internal/common/errors"
)

// activePairIndex guards one non-deleted assignment per (founder, advisor).
const activePairIndex = "ux_assignments_pair_active"

// mapPostgresError maps driver errors to sentinels. Errors that are not
// *pq.Error are returned unchanged.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch string(pqErr.Code) {
	case pgerrcode.UniqueViolation:
		if pqErr.Constraint == activePairIndex || pqErr.Constraint == "" {
			return fmt.Errorf("%w: %s", apperrors.ErrAssignmentExists, pqErr.Detail)
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pqErr.Constraint, err)

	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("foreign key violation: %s: %w", pqErr.Constraint, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.AdminShutdown,
		pgerrcode.TooManyConnections:
		return apperrors.NewDatabaseConnectionFailedError(err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s): %w",
			pqErr.Code, pqErr.Message, pqErr.Detail, err)
	}
}
