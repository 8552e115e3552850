package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// Unique indexes the payment services branch on.
const (
	ConstraintOpenIntentPerSubject   = "ux_payment_intents_open_subject"
	ConstraintIntentChannelReference = "ux_payment_intents_channel_reference"
	ConstraintCallbackSourceEvent    = "ux_payment_callbacks_source_event"
)

// sqlite names the violated columns instead of the index.
var sqliteConstraintColumns = map[string]string{
	ConstraintOpenIntentPerSubject:   "payment_intents.subject_type, payment_intents.subject_id",
	ConstraintIntentChannelReference: "payment_intents.channel_reference",
	ConstraintCallbackSourceEvent:    "payment_callbacks.source, payment_callbacks.external_event_id",
}

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is provided, only violations of that constraint match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation && matchesConstraint(pgErr.ConstraintName, constraintName)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation && matchesConstraint(pqErr.Constraint, constraintName)
	}

	// sqlite and wrapped driver errors only expose text.
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if constraintName == "" || strings.Contains(msg, constraintName) {
		return true
	}
	columns, ok := sqliteConstraintColumns[constraintName]
	return ok && strings.Contains(msg, columns)
}

func matchesConstraint(actual, want string) bool {
	return want == "" || actual == want
}
