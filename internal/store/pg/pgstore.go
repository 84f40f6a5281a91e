// Package pg implements the credential store on PostgreSQL through the
// database/sql interface and the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"authgate.org/internal/authz"
	"authgate.org/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements authz.Store.
type Store struct {
	db *sql.DB
}

var _ authz.Store = (*Store)(nil)

// Open connects to PostgreSQL with pool defaults suitable for the API.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing database handle (test use).
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for readiness probes.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users(context.Context) authz.UserStore             { return &userStore{db: s.db} }
func (s *Store) Roles(context.Context) authz.RoleStore             { return &roleStore{db: s.db} }
func (s *Store) Permissions(context.Context) authz.PermissionStore { return &permissionStore{db: s.db} }

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return authz.ErrAlreadyExists
		case pgErrForeignKeyViolation:
			return authz.ErrNotFound
		}
	}
	return err
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *authz.User) error {
	if u.ID == "" {
		u.ID = ids.NewHex()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users(id, name, email, password_hash)
		values ($1, $2, $3, nullif($4, ''))
		returning created_at, updated_at
	`, u.ID, u.Name, u.Email, u.PasswordHash)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

const userColumns = `id, name, email, coalesce(password_hash, ''), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*authz.User, error) {
	var u authz.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authz.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*authz.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*authz.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
}

func (s *userStore) List(ctx context.Context) ([]*authz.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*authz.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) Update(ctx context.Context, u *authz.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set name=$2, email=$3, password_hash=nullif($4, ''), updated_at=now()
		where id=$1
	`, u.ID, u.Name, u.Email, u.PasswordHash)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *authz.Role) error {
	if role.ID == "" {
		role.ID = ids.NewHex()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles(id, name, description)
		values ($1, $2, $3)
		returning created_at, updated_at
	`, role.ID, role.Name, role.Description)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

const roleColumns = `id, name, description, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (*authz.Role, error) {
	var role authz.Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authz.ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*authz.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id=$1`, id))
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*authz.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where name=$1`, name))
}

func (s *roleStore) List(ctx context.Context) ([]*authz.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+roleColumns+` from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*authz.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *roleStore) Assign(ctx context.Context, userID, roleID string) (authz.UserRole, error) {
	var ur authz.UserRole
	err := s.db.QueryRowContext(ctx, `
		insert into user_roles(id, user_id, role_id)
		values ($1, $2, $3)
		on conflict (user_id, role_id) do nothing
		returning id, user_id, role_id, created_at
	`, ids.NewHex(), userID, roleID).Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.CreatedAt)
	if err == nil {
		return ur, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return authz.UserRole{}, mapError(err)
	}
	// Conflict: the assignment already exists, return it.
	err = s.db.QueryRowContext(ctx, `
		select id, user_id, role_id, created_at
		from user_roles where user_id=$1 and role_id=$2
	`, userID, roleID).Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.UserRole{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.UserRole{}, err
	}
	return ur, nil
}

func (s *roleStore) Unassign(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from user_roles where user_id=$1 and role_id=$2`, userID, roleID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *roleStore) AssignmentsForUser(ctx context.Context, userID string) ([]authz.UserRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, role_id, created_at
		from user_roles where user_id=$1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []authz.UserRole
	for rows.Next() {
		var ur authz.UserRole
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ur)
	}
	return result, rows.Err()
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Create(ctx context.Context, p *authz.Permission) error {
	if p.ID == "" {
		p.ID = ids.NewHex()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into permissions(id, url_pattern, method)
		values ($1, $2, $3)
		returning usage_count, created_at
	`, p.ID, p.URLPattern, p.Method)
	if err := row.Scan(&p.UsageCount, &p.CreatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

const permissionColumns = `id, url_pattern, method, usage_count, created_at`

func scanPermission(row interface{ Scan(...any) error }) (*authz.Permission, error) {
	var p authz.Permission
	if err := row.Scan(&p.ID, &p.URLPattern, &p.Method, &p.UsageCount, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authz.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *permissionStore) Find(ctx context.Context, id string) (*authz.Permission, error) {
	return scanPermission(s.db.QueryRowContext(ctx,
		`select `+permissionColumns+` from permissions where id=$1`, id))
}

func (s *permissionStore) FindByPattern(ctx context.Context, urlPattern, method string) (*authz.Permission, error) {
	return scanPermission(s.db.QueryRowContext(ctx,
		`select `+permissionColumns+` from permissions where url_pattern=$1 and method=$2`,
		urlPattern, method))
}

func (s *permissionStore) List(ctx context.Context) ([]*authz.Permission, error) {
	return s.queryPermissions(ctx,
		`select `+permissionColumns+` from permissions order by url_pattern, method`)
}

func (s *permissionStore) ListByUsage(ctx context.Context) ([]*authz.Permission, error) {
	return s.queryPermissions(ctx,
		`select `+permissionColumns+` from permissions order by usage_count desc, url_pattern, method`)
}

func (s *permissionStore) queryPermissions(ctx context.Context, query string, args ...any) ([]*authz.Permission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []*authz.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *permissionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *permissionStore) Grant(ctx context.Context, roleID, permissionID string) (authz.RolePermission, error) {
	var rp authz.RolePermission
	err := s.db.QueryRowContext(ctx, `
		insert into role_permissions(id, role_id, permission_id)
		values ($1, $2, $3)
		on conflict (role_id, permission_id) do nothing
		returning id, role_id, permission_id, created_at
	`, ids.NewHex(), roleID, permissionID).Scan(&rp.ID, &rp.RoleID, &rp.PermissionID, &rp.CreatedAt)
	if err == nil {
		return rp, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return authz.RolePermission{}, mapError(err)
	}
	err = s.db.QueryRowContext(ctx, `
		select id, role_id, permission_id, created_at
		from role_permissions where role_id=$1 and permission_id=$2
	`, roleID, permissionID).Scan(&rp.ID, &rp.RoleID, &rp.PermissionID, &rp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.RolePermission{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.RolePermission{}, err
	}
	return rp, nil
}

func (s *permissionStore) Revoke(ctx context.Context, roleID, permissionID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from role_permissions where role_id=$1 and permission_id=$2`, roleID, permissionID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *permissionStore) GrantExists(ctx context.Context, roleID, permissionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(
			select 1 from role_permissions where role_id=$1 and permission_id=$2
		)
	`, roleID, permissionID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *permissionStore) ForRole(ctx context.Context, roleID string) ([]*authz.Permission, error) {
	return s.queryPermissions(ctx, `
		select p.id, p.url_pattern, p.method, p.usage_count, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id=$1
		order by p.url_pattern, p.method
	`, roleID)
}

// IncrementUsage is a single atomic statement, so concurrent increments on
// the same permission never lose updates.
func (s *permissionStore) IncrementUsage(ctx context.Context, permissionID string) error {
	res, err := s.db.ExecContext(ctx,
		`update permissions set usage_count = usage_count + 1 where id=$1`, permissionID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authz.ErrNotFound
	}
	return nil
}
