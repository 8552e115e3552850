package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// logDetailKeys are the payment identifiers lifted from error details into
// log fields. Details are not always exposed to callers, but operators
// need them to find the intent a failed request touched.
var logDetailKeys = []string{"reason", "intent_id", "status", "method", "provider", "source"}

// LogFields flattens err for structured logging: its code, the unwrap
// chain, selected payment details and the Postgres diagnostics when a
// driver error is in the chain.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	fields["error_chain"] = chain

	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
		if details, ok := typed.Details().(map[string]any); ok {
			for _, key := range logDetailKeys {
				if v, ok := details[key]; ok {
					fields[key] = v
				}
			}
		}
	}

	if code, constraint, table := postgresDiagnostics(err); code != "" {
		fields["pg_code"] = code
		fields["pg_constraint"] = constraint
		fields["pg_table"] = table
	}
	return fields
}

func postgresDiagnostics(err error) (code, constraint, table string) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, pqErr.Table
	}
	return "", "", ""
}
