package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/user"
	"github.com/findclassnz/findclass/storage/database"
)

const userColumns = `id, name, email, phone, avatar_url, role, is_active, email_verified,
	password_hash, created_at, updated_at, last_login`

// orderable user columns
var userOrderings = map[string]string{
	"name":       "lower(name)",
	"email":      "email",
	"role":       "role",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRow struct {
	ID            string       `db:"id"`
	Name          string       `db:"name"`
	Email         string       `db:"email"`
	Phone         string       `db:"phone"`
	AvatarURL     string       `db:"avatar_url"`
	Role          string       `db:"role"`
	IsActive      bool         `db:"is_active"`
	EmailVerified bool         `db:"email_verified"`
	PasswordHash  []byte       `db:"password_hash"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
	LastLogin     sql.NullTime `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:            usr.ID,
		Name:          usr.Name,
		Email:         usr.Email,
		Phone:         usr.Phone,
		AvatarURL:     usr.AvatarURL,
		Role:          usr.Role,
		IsActive:      usr.IsActive,
		EmailVerified: usr.EmailVerified,
		PasswordHash:  usr.PasswordHash,
		CreatedAt:     usr.CreatedAt.UTC(),
		UpdatedAt:     usr.UpdatedAt.UTC(),
		LastLogin:     toNullTime(usr.LastLogin),
	}
}

func (row userRow) toUser() user.User {
	return user.User{
		ID:            row.ID,
		Name:          row.Name,
		Email:         row.Email,
		Phone:         row.Phone,
		AvatarURL:     row.AvatarURL,
		Role:          row.Role,
		IsActive:      row.IsActive,
		EmailVerified: row.EmailVerified,
		PasswordHash:  row.PasswordHash,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
		LastLogin:     fromNullTime(row.LastLogin),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo *userRepository) trapNoRowsErr(err error, msg string) error {
	if database.IsNoRows(err) {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}

	var exists bool
	q := repo.db.Rebind("SELECT EXISTS (SELECT 1 FROM users WHERE email = ? AND NOT (id::text = ANY(?)))")
	if err := repo.db.GetContext(ctx, &exists, q, email, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (` + userColumns + `) VALUES (:id, :name, :email, :phone, :avatar_url, :role,
		:is_active, :email_verified, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr)); err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]user.User, int, error) {
	var where whereClause
	// users with Name or Email matching the search keyword
	if filter.Search != "" {
		val := likePattern(filter.Search)
		where.add("(name ILIKE ? OR email ILIKE ?)", val, val)
	}
	if len(filter.Roles) > 0 {
		where.add("role = ANY(?)", pq.Array(filter.Roles))
	}
	if filter.IsActive != nil {
		where.add("is_active = ?", *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		where.add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		where.add("created_at <= ?", filter.CreatedTo.UTC())
	}

	total, err := count(ctx, repo.db, "users", where)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting users")
	}

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := userOrderings[ord.Field]; ok {
			orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	orderList = append(orderList, "created_at DESC")

	q := "SELECT " + userColumns + " FROM users" + where.String() +
		" ORDER BY " + strings.Join(orderList, ", ") + " LIMIT ? OFFSET ?"
	var rows []userRow
	args := append(where.args, page.Limit, page.Offset())
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, total, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		row  userRow
		cond string
		arg  string
	)
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		cond, arg = "id = ?", filter.ID
	case filter.Email != "":
		cond, arg = "email = ?", filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	q := repo.db.Rebind("SELECT " + userColumns + " FROM users WHERE " + cond)
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !isUUID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	q := `UPDATE users SET name = :name, email = :email, phone = :phone, avatar_url = :avatar_url, role = :role,
		is_active = :is_active, email_verified = :email_verified, password_hash = :password_hash,
		updated_at = :updated_at, last_login = :last_login
		WHERE id = :id RETURNING ` + userColumns
	rows, err := repo.db.NamedQueryContext(ctx, q, toUserRow(usr))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return user.User{}, errors.Wrap(err, "updating user")
		}
		return user.User{}, user.ErrNotFound
	}
	var row userRow
	if err = rows.StructScan(&row); err != nil {
		return user.User{}, errors.Wrap(err, "scanning user")
	}
	return row.toUser(), nil
}

// DeleteUsersByID deletes users with everything they own, then refreshes the ratings their reviews counted in.
func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	ids = uuids(ids)
	if len(ids) == 0 {
		return nil
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var reviewed []ratingTarget
	q := tx.Rebind("SELECT DISTINCT course_id, teacher_id FROM reviews WHERE author_id = ANY(?::uuid[])")
	if err = tx.SelectContext(ctx, &reviewed, q, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "querying reviewed courses")
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM users WHERE id = ANY(?::uuid[])"), pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	for _, target := range reviewed {
		if err = refreshRatings(ctx, tx, target.CourseID, target.TeacherID); err != nil {
			return err
		}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
