package repositories

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/caselight/caselight/pkg/errors"
)

// errScanner fails every Scan with a fixed error.
type errScanner struct{ err error }

func (s errScanner) Scan(_ ...any) error { return s.err }

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: uniqueViolation}
	assert.True(t, isUniqueViolation(pgErr))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", pgErr)))

	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("unique")))
	assert.False(t, isUniqueViolation(nil))
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, isNoRows(pgx.ErrNoRows))
	assert.True(t, isNoRows(fmt.Errorf("query: %w", pgx.ErrNoRows)))
	assert.False(t, isNoRows(errors.New("no rows")))
	assert.False(t, isNoRows(nil))
}

func TestScanCase_NoRowsMapsToCaseNotFound(t *testing.T) {
	_, err := scanCase(errScanner{err: pgx.ErrNoRows})
	require.Error(t, err)

	assert.Equal(t, apperrors.ErrCodeCaseNotFound, apperrors.GetCode(err))
}

func TestScanDeadline_NoRowsMapsToDeadlineNotFound(t *testing.T) {
	_, err := scanDeadline(errScanner{err: pgx.ErrNoRows})
	require.Error(t, err)

	assert.Equal(t, apperrors.ErrCodeDeadlineNotFound, apperrors.GetCode(err))
}

func TestScanWorkflowTask_NoRowsMapsToTaskNotFound(t *testing.T) {
	_, err := scanWorkflowTask(errScanner{err: pgx.ErrNoRows})
	require.Error(t, err)

	assert.Equal(t, apperrors.ErrCodeWorkflowTaskNotFound, apperrors.GetCode(err))
}

func TestScanRiskSnapshot_NoRowsMapsToNotFound(t *testing.T) {
	_, err := scanRiskSnapshot(errScanner{err: pgx.ErrNoRows})
	require.Error(t, err)

	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestScanCase_OtherErrorsWrapAsDatabaseError(t *testing.T) {
	_, err := scanCase(errScanner{err: errors.New("connection reset")})
	require.Error(t, err)

	assert.Equal(t, apperrors.ErrCodeDatabaseError, apperrors.GetCode(err))
}
