package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Report is the loggable breakdown of an error: the typed code when one is
// present, the unwrap chain, and driver detail for postgres failures.
type Report struct {
	Message string `json:"message"`
	Code    Code   `json:"code,omitempty"`

	Causes []string `json:"causes,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// Describe breaks an error down for structured logging.
func Describe(err error) Report {
	if err == nil {
		return Report{}
	}

	r := Report{Message: err.Error()}
	if te := As(err); te != nil {
		r.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		r.Causes = append(r.Causes, fmt.Sprintf("%T: %v", e, e))
	}
	r.fillDriverDetail(err)
	return r
}

func (r *Report) fillDriverDetail(err error) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		r.PGCode = pgxErr.Code
		r.PGConstraint = pgxErr.ConstraintName
		r.PGTable = pgxErr.TableName
		r.PGColumn = pgxErr.ColumnName
		r.PGDetail = pgxErr.Detail
		r.PGMessage = pgxErr.Message
		return
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		r.PGCode = string(pqErr.Code)
		r.PGConstraint = pqErr.Constraint
		r.PGTable = pqErr.Table
		r.PGColumn = pqErr.Column
		r.PGDetail = pqErr.Detail
		r.PGMessage = pqErr.Message
	}
}
