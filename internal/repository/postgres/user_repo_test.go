package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/model"
)

var userCols = []string{"id", "email", "username", "password_hash", "created_at", "updated_at", "deleted_at", "roles"}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestUserRepo_Create_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	now := time.Now()
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "a@x.com", Username: "alice", PasswordHash: "h"}

	mock.ExpectBegin()
	mock.ExpectQuery(q(`INSERT INTO users (id, email, username, password_hash) VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`)).
		WithArgs(u.ID, u.Email, u.Username, u.PasswordHash).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(q(`INSERT INTO user_roles (user_id, role_id) SELECT $1, id FROM roles WHERE name = ANY($2)`)).
		WithArgs(u.ID, []string{"USER"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, r.Create(ctx, u, model.RoleUser))
	require.Equal(t, []model.RoleName{model.RoleUser}, u.Roles)
	require.Equal(t, now, u.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create_DuplicateEmail_RollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "a@x.com", Username: "alice", PasswordHash: "h"}

	mock.ExpectBegin()
	mock.ExpectQuery(q(`INSERT INTO users`)).
		WithArgs(u.ID, u.Email, u.Username, u.PasswordHash).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := r.Create(context.Background(), u, model.RoleUser)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A user without a role must never be committed.
func TestUserRepo_Create_MissingRole_RollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	now := time.Now()
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "a@x.com", Username: "alice", PasswordHash: "h"}

	mock.ExpectBegin()
	mock.ExpectQuery(q(`INSERT INTO users`)).
		WithArgs(u.ID, u.Email, u.Username, u.PasswordHash).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(q(`INSERT INTO user_roles`)).
		WithArgs(u.ID, []string{"USER"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	err := r.Create(context.Background(), u, model.RoleUser)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Nil(t, u.Roles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(q(`WHERE u.id = $1 GROUP BY u.id`)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(id, "a@x.com", "alice", "h", now, now, (*time.Time)(nil), []string{"ADMIN", "USER"}))
	u, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, u.ID)
	require.True(t, u.Active())
	require.Equal(t, []model.RoleName{model.RoleAdmin, model.RoleUser}, u.Roles)

	mock.ExpectQuery(q(`WHERE u.id = $1`)).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByID(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)

	boom := errors.New("conn reset")
	mock.ExpectQuery(q(`WHERE u.id = $1`)).
		WithArgs(id).
		WillReturnError(boom)
	_, err = r.GetByID(ctx, id)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_GetByEmail_ReturnsDeletedRow(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	id := uuid.Must(uuid.NewV4())
	now := time.Now()
	del := now.Add(-time.Hour)

	mock.ExpectQuery(q(`WHERE u.email = $1 GROUP BY u.id`)).
		WithArgs("gone@x.com").
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(id, "gone@x.com", "gone", "h", now, now, &del, []string{}))
	u, err := r.GetByEmail(context.Background(), "gone@x.com")
	require.NoError(t, err)
	require.False(t, u.Active())
	require.Empty(t, u.Roles)
}

func TestUserRepo_Update_FieldsAndRoles(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	id := uuid.Must(uuid.NewV4())
	now := time.Now()
	email := "new@x.com"
	roles := []model.RoleName{model.RoleAdmin, model.RoleUser, model.RoleAdmin}

	mock.ExpectBegin()
	mock.ExpectExec(q(`UPDATE users SET email = COALESCE($2::text, email)`)).
		WithArgs(id, &email, (*string)(nil), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q(`DELETE FROM user_roles WHERE user_id = $1`)).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(q(`INSERT INTO user_roles`)).
		WithArgs(id, []string{"ADMIN", "USER"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectQuery(q(`WHERE u.id = $1`)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(id, email, "alice", "h", now, now, (*time.Time)(nil), []string{"ADMIN", "USER"}))
	mock.ExpectCommit()

	u, err := r.Update(context.Background(), id, model.UserChanges{Email: &email, Roles: &roles})
	require.NoError(t, err)
	require.Equal(t, email, u.Email)
	require.Equal(t, []model.RoleName{model.RoleAdmin, model.RoleUser}, u.Roles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Update_Errors(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	name := "bob"
	email := "taken@x.com"

	// inactive or absent
	mock.ExpectBegin()
	mock.ExpectExec(q(`UPDATE users`)).
		WithArgs(id, (*string)(nil), &name, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()
	_, err := r.Update(ctx, id, model.UserChanges{Username: &name})
	require.ErrorIs(t, err, errs.ErrNotFound)

	// duplicate email
	mock.ExpectBegin()
	mock.ExpectExec(q(`UPDATE users`)).
		WithArgs(id, &email, (*string)(nil), (*string)(nil)).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	_, err = r.Update(ctx, id, model.UserChanges{Email: &email})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	// unknown role rolls back the field change too
	roles := []model.RoleName{model.RoleAdmin}
	mock.ExpectBegin()
	mock.ExpectExec(q(`UPDATE users`)).
		WithArgs(id, (*string)(nil), &name, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q(`DELETE FROM user_roles`)).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(q(`INSERT INTO user_roles`)).
		WithArgs(id, []string{"ADMIN"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()
	_, err = r.Update(ctx, id, model.UserChanges{Username: &name, Roles: &roles})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_SoftDelete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(q(`UPDATE users SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`)).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SoftDelete(ctx, id))

	mock.ExpectExec(q(`UPDATE users SET deleted_at`)).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SoftDelete(ctx, id), errs.ErrNotFound)
}

func TestUserRepo_ListActive(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	now := time.Now()
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	mock.ExpectQuery(q(`WHERE u.deleted_at IS NULL GROUP BY u.id ORDER BY u.created_at DESC, u.id DESC LIMIT $1`)).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(a, "a@x.com", "a", "h", now, now, (*time.Time)(nil), []string{"USER"}).
			AddRow(b, "b@x.com", "b", "h", now.Add(-time.Minute), now, (*time.Time)(nil), []string{"USER"}))
	page, err := r.ListActive(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, a, page[0].ID)

	cur := &model.UserCursor{CreatedAt: now.Add(-time.Minute), ID: b}
	mock.ExpectQuery(q(`(u.created_at, u.id) < ($2, $3)`)).
		WithArgs(2, cur.CreatedAt, cur.ID).
		WillReturnRows(pgxmock.NewRows(userCols))
	page, err = r.ListActive(ctx, cur, 2)
	require.NoError(t, err)
	require.Empty(t, page)
	require.NoError(t, mock.ExpectationsWereMet())
}
