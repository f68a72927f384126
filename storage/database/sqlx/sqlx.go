// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// whereClause collects AND-ed conditions written with "?" placeholders; queries are rebound before use.
type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// likePattern escapes the LIKE wildcards of s and wraps it in "%".
func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// uuids keeps the valid UUIDs of ids.
func uuids(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

func fromNullTime(t sql.NullTime) time.Time {
	if t.Valid {
		return t.Time.UTC()
	}
	return time.Time{}
}

func toNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

// count runs a COUNT(*) on `from` (table and joins) filtered by where.
func count(ctx context.Context, db *sqlx.DB, from string, where whereClause) (int, error) {
	var total int
	q := db.Rebind("SELECT COUNT(*) FROM " + from + where.String())
	if err := db.GetContext(ctx, &total, q, where.args...); err != nil {
		return 0, errors.Wrap(err, "counting rows")
	}
	return total, nil
}

// rowsAffected maps "no rows affected" to notFound.
func rowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "getting affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}
