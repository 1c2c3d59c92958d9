package store

import (
	stderrors "errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aethra/compass/internal/errors"
)

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, Classify(nil, "client"))
}

func TestClassifyRecordNotFound(t *testing.T) {
	err := Classify(gorm.ErrRecordNotFound, "client")

	var nf *errors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "client", nf.Resource)
	assert.Equal(t, 404, nf.HTTPStatus())
}

func TestClassifyPqUniqueViolation(t *testing.T) {
	pqErr := &pq.Error{
		Code:       "23505",
		Constraint: "idx_clients_user_email",
		Detail:     "Key (email)=(a@b.co) already exists.",
	}

	err := Classify(pqErr, "client")

	var conflict *errors.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "email", conflict.Field)
	assert.Equal(t, 409, conflict.HTTPStatus())
}

func TestClassifyPqInvoiceNumberConflict(t *testing.T) {
	pqErr := &pq.Error{Code: "23505", Constraint: "idx_invoices_user_invoice_number"}

	err := Classify(pqErr, "invoice")

	var conflict *errors.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "invoice_number", conflict.Field)
}

func TestClassifyMysqlDuplicateKey(t *testing.T) {
	myErr := &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'a@b.co' for key 'clients.email'",
	}

	err := Classify(myErr, "client")

	var conflict *errors.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "email", conflict.Field)
}

func TestClassifyUnknown(t *testing.T) {
	err := Classify(stderrors.New("connection reset by peer"), "project")

	var unknown *errors.UnknownError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, 500, unknown.HTTPStatus())
	assert.EqualError(t, unknown.Unwrap(), "connection reset by peer")
}

func TestClassifyPassesThroughClassified(t *testing.T) {
	original := errors.NewLimitExceededError("clients", "")
	got := Classify(original, "client")
	assert.Same(t, original, got)
}
