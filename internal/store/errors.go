package store

import (
	stderrors "errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/aethra/compass/internal/errors"
)

// Driver duplicate-key codes
const (
	pqUniqueViolation  = "23505"
	mysqlDuplicateKey  = 1062
	mysqlFKConstraint  = 1452
	pqForeignKeyViolat = "23503"
)

// Classify maps a driver or GORM error onto the Compass taxonomy. The
// resource name feeds not-found messages; nil passes through.
func Classify(err error, resource string) error {
	if err == nil {
		return nil
	}

	// Already classified
	var ce errors.CompassError
	if stderrors.As(err, &ce) {
		return err
	}

	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NewNotFoundError(resource)
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return errors.NewConflictError(fieldFromConstraint(pqErr.Constraint, pqErr.Detail))
		case pqForeignKeyViolat:
			return errors.NewValidationError("", "referenced record does not exist")
		}
	}

	var myErr *mysql.MySQLError
	if stderrors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateKey:
			return errors.NewConflictError(fieldFromConstraint("", myErr.Message))
		case mysqlFKConstraint:
			return errors.NewValidationError("", "referenced record does not exist")
		}
	}

	return errors.NewUnknownError(err)
}

// duplicateKeyError fabricates a pq unique violation so the in-memory
// store classifies identically to Postgres.
func duplicateKeyError(field string) error {
	return &pq.Error{Code: pq.ErrorCode(pqUniqueViolation), Constraint: "idx_" + field}
}

// fieldFromConstraint recovers the offending column from a constraint name
// or detail string so conflicts can be reported per field.
func fieldFromConstraint(constraint, detail string) string {
	haystack := strings.ToLower(constraint + " " + detail)
	for _, field := range []string{"email", "invoice_number", "name", "phone"} {
		if strings.Contains(haystack, field) {
			return field
		}
	}
	return ""
}
