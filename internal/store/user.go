package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorechamp/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// NewUser holds the fields supplied at registration.
type NewUser struct {
	Username     string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	PasswordHash string
	Role         string
	ParentID     *int64
}

// UserUpdate holds the editable profile fields of an account. Nil fields
// are left unchanged; an empty Email clears it.
type UserUpdate struct {
	Username           *string
	FirstName          *string
	LastName           *string
	Email              *string
	Phone              *string
	PasswordHash       *string
	ChoreRotationOrder *int
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var email sql.NullString
	var parentID, householdID sql.NullInt64
	err := scanner.Scan(
		&u.ID, &u.Username, &u.FirstName, &u.LastName, &email, &u.Phone,
		&u.PasswordHash, &u.Role, &parentID, &householdID, &u.Points,
		&u.ChoreRotationOrder, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	if parentID.Valid {
		u.ParentID = &parentID.Int64
	}
	if householdID.Valid {
		u.HouseholdID = &householdID.Int64
	}
	return &u, nil
}

const userCols = `id, username, first_name, last_name, email, phone, password_hash, role, parent_id, household_id, points, chore_rotation_order, created_at, updated_at`

func (s *UserStore) listUsers(query string, args ...any) ([]model.User, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// Create inserts a user. Duplicate usernames or emails yield a *ConflictError.
func (s *UserStore) Create(nu NewUser) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (username, first_name, last_name, email, phone, password_hash, role, parent_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nu.Username, nu.FirstName, nu.LastName, nullString(nu.Email), nu.Phone,
		nu.PasswordHash, nu.Role, nullInt64(nu.ParentID),
	)
	if err != nil {
		if ce := asConflict(err, "users.username", "username"); ce != nil {
			return nil, ce
		}
		if ce := asConflict(err, "users.email", "email"); ce != nil {
			return nil, ce
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByUsername(username string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// ListChildren returns the child accounts created by parentID.
func (s *UserStore) ListChildren(parentID int64) ([]model.User, error) {
	users, err := s.listUsers(
		`SELECT `+userCols+` FROM users WHERE parent_id = ? AND role = 'child' ORDER BY chore_rotation_order ASC, id ASC`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return users, nil
}

// ListAvailableChildren returns children that belong to no household.
func (s *UserStore) ListAvailableChildren() ([]model.User, error) {
	users, err := s.listUsers(
		`SELECT ` + userCols + ` FROM users
		 WHERE role = 'child' AND id NOT IN (SELECT child_id FROM household_children)
		 ORDER BY username ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list available children: %w", err)
	}
	return users, nil
}

// Update applies the non-nil fields of upd to user id.
func (s *UserStore) Update(id int64, upd UserUpdate) (*model.User, error) {
	var email any
	if upd.Email != nil {
		email = nullString(*upd.Email)
	}
	_, err := s.db.Exec(
		`UPDATE users SET
		   username = COALESCE(?, username),
		   first_name = COALESCE(?, first_name),
		   last_name = COALESCE(?, last_name),
		   email = CASE WHEN ? THEN ? ELSE email END,
		   phone = COALESCE(?, phone),
		   password_hash = COALESCE(?, password_hash),
		   chore_rotation_order = COALESCE(?, chore_rotation_order),
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		upd.Username, upd.FirstName, upd.LastName, upd.Email != nil, email, upd.Phone,
		upd.PasswordHash, upd.ChoreRotationOrder, id,
	)
	if err != nil {
		if ce := asConflict(err, "users.username", "username"); ce != nil {
			return nil, ce
		}
		if ce := asConflict(err, "users.email", "email"); ce != nil {
			return nil, ce
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
