package aggregates

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
)

// ValidationError and ConflictError are raised inside a write; MapError
// stamps the write's op on them.
func ValidationError(msg string) error {
	return &domainagg.Error{Code: domainagg.CodeValidation, Message: strings.TrimSpace(msg)}
}

func ConflictError(msg string) error {
	return &domainagg.Error{Code: domainagg.CodeConflict, Message: strings.TrimSpace(msg)}
}

// MapError gives every failure leaving a write an aggregate code. Store
// errors that are neither missing rows nor unique violations are persistence
// failures.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var aggErr *domainagg.Error
	if errors.As(err, &aggErr) {
		if aggErr.Op != "" {
			return aggErr
		}
		stamped := *aggErr
		stamped.Op = op
		return &stamped
	}
	return domainagg.Wrap(storeErrorCode(err), op, err)
}

func storeErrorCode(err error) domainagg.ErrorCode {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domainagg.CodeNotFound
	case isUniqueViolation(err):
		return domainagg.CodeConflict
	default:
		return domainagg.CodePersistence
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint failed")
}
