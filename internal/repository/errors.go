package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/foundernet/engine/internal/migrations"
	appErr "github.com/foundernet/engine/pkg/errors"
)

// classify maps store errors onto the application taxonomy. AppErrors pass
// through unchanged.
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *appErr.AppError
	if errors.As(err, &ae) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501":
			return appErr.Wrap(err, appErr.CodePolicyDenied, message).WithMeta("sqlstate", pgErr.Code)
		case pgErr.Code == "23505":
			return appErr.Wrap(err, appErr.CodeConflict, message).
				WithMeta("sqlstate", pgErr.Code).
				WithMeta("constraint", pgErr.ConstraintName)
		case pgErr.Code == migrations.SQLStateEmailClaimed:
			return appErr.Wrap(err, appErr.CodeConflict, message).WithMeta("sqlstate", pgErr.Code)
		case pgErr.Code == "22P02", pgErr.Code == "23502", pgErr.Code == "23514", pgErr.Code == "22001":
			return appErr.Wrap(err, appErr.CodeInvalid, message).WithMeta("sqlstate", pgErr.Code)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001", pgErr.Code == "40P01",
			pgErr.Code == "53300", strings.HasPrefix(pgErr.Code, "57P"):
			return appErr.Unavailable(err, message).WithMeta("sqlstate", pgErr.Code)
		}
		return appErr.Wrap(err, appErr.CodeInternal, message).WithMeta("sqlstate", pgErr.Code)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return appErr.Unavailable(err, message)
	case errors.Is(err, driver.ErrBadConn), errors.As(err, &connErr), errors.As(err, &netErr):
		return appErr.Unavailable(err, message)
	}
	return appErr.Wrap(err, appErr.CodeInternal, message)
}

// IsEmailRace reports a founder insert that lost a race on the email index,
// as opposed to an email held by another live identity.
func IsEmailRace(err error) bool {
	var ae *appErr.AppError
	if !errors.As(err, &ae) || ae.Code != appErr.CodeConflict {
		return false
	}
	c, _ := ae.Meta["constraint"].(string)
	return c == migrations.FounderEmailIndex
}
