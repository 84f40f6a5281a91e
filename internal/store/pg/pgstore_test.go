package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"authgate.org/internal/authz"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestUserCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "Ada", "ada@example.com", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Users(ctx).Create(ctx, &authz.User{Name: "Ada", Email: "ada@example.com", PasswordHash: "h"})
	if !errors.Is(err, authz.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUserFindByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "name", "email", "coalesce", "created_at", "updated_at"}).
		AddRow("507f1f77bcf86cd799439011", "Ada", "ada@example.com", "hash", now, now)
	mock.ExpectQuery("select .* from users where email").
		WithArgs("ada@example.com").
		WillReturnRows(rows)

	user, err := store.Users(ctx).FindByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if user.ID != "507f1f77bcf86cd799439011" || user.PasswordHash != "hash" {
		t.Fatalf("unexpected user %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUserFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select .* from users where id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Users(ctx).Find(ctx, "missing"); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPermissionFindByPattern(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "url_pattern", "method", "usage_count", "created_at"}).
		AddRow("p1", "/api/users/?", "GET", int64(7), time.Now())
	mock.ExpectQuery("select .* from permissions where url_pattern").
		WithArgs("/api/users/?", "GET").
		WillReturnRows(rows)

	perm, err := store.Permissions(ctx).FindByPattern(ctx, "/api/users/?", "GET")
	if err != nil {
		t.Fatalf("find by pattern: %v", err)
	}
	if perm.UsageCount != 7 {
		t.Fatalf("unexpected usage count %d", perm.UsageCount)
	}
}

func TestIncrementUsage(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("update permissions set usage_count = usage_count \\+ 1").
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Permissions(ctx).IncrementUsage(ctx, "p1"); err != nil {
		t.Fatalf("increment: %v", err)
	}

	mock.ExpectExec("update permissions set usage_count = usage_count \\+ 1").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Permissions(ctx).IncrementUsage(ctx, "missing"); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAssignIdempotentOnConflict(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	// The insert hits the unique constraint and returns no row, then the
	// existing association is read back.
	mock.ExpectQuery("insert into user_roles").
		WithArgs(sqlmock.AnyArg(), "u1", "r1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("select id, user_id, role_id, created_at").
		WithArgs("u1", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "role_id", "created_at"}).
			AddRow("ur1", "u1", "r1", now))

	ur, err := store.Roles(ctx).Assign(ctx, "u1", "r1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if ur.ID != "ur1" {
		t.Fatalf("expected existing association, got %+v", ur)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGrantExists(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select exists").
		WithArgs("r1", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.Permissions(ctx).GrantExists(ctx, "r1", "p1")
	if err != nil || !ok {
		t.Fatalf("expected grant to exist, got %v %v", ok, err)
	}
}

func TestRoleDeleteNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("delete from roles where id").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Roles(ctx).Delete(ctx, "missing"); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
