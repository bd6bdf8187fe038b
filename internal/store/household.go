package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dukerupert/chorechamp/internal/model"
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	err := scanner.Scan(&h.ID, &h.Name, &h.CreatedBy, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanInvite(scanner interface{ Scan(...any) error }) (*model.Invite, error) {
	var i model.Invite
	err := scanner.Scan(&i.ID, &i.HouseholdID, &i.Email, &i.Token, &i.Role, &i.Status, &i.ExpiresAt, &i.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

const householdCols = `id, name, created_by, created_at, updated_at`
const inviteCols = `id, household_id, email, token, role, status, expires_at, created_at`

// Create inserts a household owned by ownerID and points the owner's
// household_id at it, in one transaction.
func (s *HouseholdStore) Create(name string, ownerID int64) (*model.Household, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`INSERT INTO households (name, created_by) VALUES (?, ?)`, name, ownerID)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO household_parents (household_id, user_id, role, status) VALUES (?, ?, ?, ?)`,
		id, ownerID, model.ParentRoleOwner, model.ParentStatusActive,
	); err != nil {
		return nil, fmt.Errorf("insert owner: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE users SET household_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id, ownerID,
	); err != nil {
		return nil, fmt.Errorf("set owner household: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// GetByID loads a household with its parents, children and invites.
func (s *HouseholdStore) GetByID(id int64) (*model.Household, error) {
	row := s.db.QueryRow(`SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}

	if h.Parents, err = s.listParents(id); err != nil {
		return nil, err
	}
	if h.Children, err = s.listChildren(id); err != nil {
		return nil, err
	}
	if h.Invites, err = s.ListInvites(id); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *HouseholdStore) listParents(householdID int64) ([]model.HouseholdParent, error) {
	rows, err := s.db.Query(
		`SELECT hp.user_id, u.username, u.email, hp.role, hp.status, hp.created_at
		 FROM household_parents hp
		 JOIN users u ON u.id = hp.user_id
		 WHERE hp.household_id = ?
		 ORDER BY CASE hp.role WHEN 'owner' THEN 0 ELSE 1 END, hp.id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list parents: %w", err)
	}
	defer rows.Close()

	parents := []model.HouseholdParent{}
	for rows.Next() {
		var p model.HouseholdParent
		var email sql.NullString
		if err := rows.Scan(&p.UserID, &p.Username, &email, &p.Role, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan parent: %w", err)
		}
		if email.Valid {
			p.Email = &email.String
		}
		parents = append(parents, p)
	}
	return parents, rows.Err()
}

func (s *HouseholdStore) listChildren(householdID int64) ([]model.User, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.username, u.first_name, u.last_name, u.email, u.phone, u.password_hash,
		        u.role, u.parent_id, u.household_id, u.points, u.chore_rotation_order, u.created_at, u.updated_at
		 FROM household_children hc
		 JOIN users u ON u.id = hc.child_id
		 WHERE hc.household_id = ?
		 ORDER BY u.chore_rotation_order ASC, u.id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list household children: %w", err)
	}
	defer rows.Close()

	children := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		children = append(children, *u)
	}
	return children, rows.Err()
}

// HouseholdIDFor returns the household userID belongs to as a parent or a
// child, or 0 when there is none.
func (s *HouseholdStore) HouseholdIDFor(userID int64) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT household_id FROM household_parents WHERE user_id = ? AND status = 'active'
		 UNION ALL
		 SELECT household_id FROM household_children WHERE child_id = ?
		 LIMIT 1`,
		userID, userID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("household for user: %w", err)
	}
	return id, nil
}

// GetForUser returns the household userID belongs to, or nil.
func (s *HouseholdStore) GetForUser(userID int64) (*model.Household, error) {
	id, err := s.HouseholdIDFor(userID)
	if err != nil || id == 0 {
		return nil, err
	}
	return s.GetByID(id)
}

// ListForParent returns every household userID is listed in as a parent,
// including ones whose invitation is still pending, oldest first.
func (s *HouseholdStore) ListForParent(userID int64) ([]model.Household, error) {
	rows, err := s.db.Query(
		`SELECT household_id FROM household_parents WHERE user_id = ? ORDER BY household_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list parent households: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan household id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	households := make([]model.Household, 0, len(ids))
	for _, id := range ids {
		hh, err := s.GetByID(id)
		if err != nil {
			return nil, err
		}
		if hh != nil {
			households = append(households, *hh)
		}
	}
	return households, nil
}

// IsParentOfAny reports whether userID is listed as a parent of any household.
func (s *HouseholdStore) IsParentOfAny(userID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM household_parents WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count parent memberships: %w", err)
	}
	return n > 0, nil
}

func (s *HouseholdStore) UpdateName(id int64, name string) (*model.Household, error) {
	_, err := s.db.Exec(
		`UPDATE households SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update household: %w", err)
	}
	return s.GetByID(id)
}

func (s *HouseholdStore) ListInvites(householdID int64) ([]model.Invite, error) {
	rows, err := s.db.Query(
		`SELECT `+inviteCols+` FROM household_invites WHERE household_id = ? ORDER BY id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	invites := []model.Invite{}
	for rows.Next() {
		i, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		invites = append(invites, *i)
	}
	return invites, rows.Err()
}

// PendingInvite returns the pending invite for email in householdID, or nil.
func (s *HouseholdStore) PendingInvite(householdID int64, email string) (*model.Invite, error) {
	row := s.db.QueryRow(
		`SELECT `+inviteCols+` FROM household_invites
		 WHERE household_id = ? AND email = ? AND status = 'pending'
		 ORDER BY id DESC LIMIT 1`,
		householdID, email,
	)
	i, err := scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending invite: %w", err)
	}
	return i, nil
}

// CreateInvite stores a pending co-parent invite with a random 32-byte token.
func (s *HouseholdStore) CreateInvite(householdID int64, email string, expiresAt time.Time) (*model.Invite, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(b)

	result, err := s.db.Exec(
		`INSERT INTO household_invites (household_id, email, token, role, status, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		householdID, email, token, model.ParentRoleCoParent, model.InviteStatusPending, expiresAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert invite: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+inviteCols+` FROM household_invites WHERE id = ?`, id)
	return scanInvite(row)
}

func (s *HouseholdStore) GetInviteByToken(token string) (*model.Invite, error) {
	row := s.db.QueryRow(`SELECT `+inviteCols+` FROM household_invites WHERE token = ?`, token)
	i, err := scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invite: %w", err)
	}
	return i, nil
}

// MarkInviteExpired flips a still-pending invite to expired.
func (s *HouseholdStore) MarkInviteExpired(id int64) error {
	_, err := s.db.Exec(
		`UPDATE household_invites SET status = 'expired' WHERE id = ? AND status = 'pending'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("expire invite: %w", err)
	}
	return nil
}

// AcceptInvite marks the invite accepted and adds userID as an active
// co-parent in one transaction. It returns ErrInviteNotPending when the invite
// was consumed concurrently and ErrAlreadyMember when the user already belongs
// to a household.
func (s *HouseholdStore) AcceptInvite(inviteID, userID int64) (*model.Household, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var householdID int64
	if err := tx.QueryRow(`SELECT household_id FROM household_invites WHERE id = ?`, inviteID).Scan(&householdID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInviteNotPending
		}
		return nil, fmt.Errorf("get invite household: %w", err)
	}

	var memberships int
	if err := tx.QueryRow(
		`SELECT (SELECT COUNT(*) FROM household_parents WHERE user_id = ?)
		      + (SELECT COUNT(*) FROM household_children WHERE child_id = ?)`,
		userID, userID,
	).Scan(&memberships); err != nil {
		return nil, fmt.Errorf("count memberships: %w", err)
	}
	if memberships > 0 {
		return nil, ErrAlreadyMember
	}

	result, err := tx.Exec(
		`UPDATE household_invites SET status = 'accepted' WHERE id = ? AND status = 'pending'`,
		inviteID,
	)
	if err != nil {
		return nil, fmt.Errorf("accept invite: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrInviteNotPending
	}

	if _, err := tx.Exec(
		`INSERT INTO household_parents (household_id, user_id, role, status) VALUES (?, ?, ?, ?)`,
		householdID, userID, model.ParentRoleCoParent, model.ParentStatusActive,
	); err != nil {
		return nil, fmt.Errorf("insert co-parent: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE users SET household_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		householdID, userID,
	); err != nil {
		return nil, fmt.Errorf("set parent household: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(householdID)
}

// AddChildren links each child to householdID in one transaction. Any child
// already linked to a household aborts the whole batch with
// ErrChildInHousehold.
func (s *HouseholdStore) AddChildren(householdID int64, childIDs []int64) (*model.Household, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, childID := range childIDs {
		result, err := tx.Exec(
			`INSERT INTO household_children (household_id, child_id)
			 SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM household_children WHERE child_id = ?)`,
			householdID, childID, childID,
		)
		if err != nil {
			if ce := asConflict(err, "household_children.child_id", "child"); ce != nil {
				return nil, ErrChildInHousehold
			}
			return nil, fmt.Errorf("insert household child: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil, ErrChildInHousehold
		}
		if _, err := tx.Exec(
			`UPDATE users SET household_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			householdID, childID,
		); err != nil {
			return nil, fmt.Errorf("set child household: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(householdID)
}

// RemoveChild unlinks childID from householdID. It reports whether the child
// was a member.
func (s *HouseholdStore) RemoveChild(householdID, childID int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`DELETE FROM household_children WHERE household_id = ? AND child_id = ?`,
		householdID, childID,
	)
	if err != nil {
		return false, fmt.Errorf("remove child: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}
	if _, err := tx.Exec(
		`UPDATE users SET household_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		childID,
	); err != nil {
		return false, fmt.Errorf("clear child household: %w", err)
	}
	return true, tx.Commit()
}

// RemoveParent unlinks a co-parent from householdID. The owner row is never
// deleted. It reports whether a row was removed.
func (s *HouseholdStore) RemoveParent(householdID, userID int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`DELETE FROM household_parents WHERE household_id = ? AND user_id = ? AND role <> 'owner'`,
		householdID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("remove parent: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}
	if _, err := tx.Exec(
		`UPDATE users SET household_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		userID,
	); err != nil {
		return false, fmt.Errorf("clear parent household: %w", err)
	}
	return true, tx.Commit()
}

// RotationOrder returns the household's members in rotation order: active
// parents with the owner first, then children by chore_rotation_order.
func (s *HouseholdStore) RotationOrder(householdID int64) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT user_id FROM (
		   SELECT hp.user_id, 0 AS grp, CASE hp.role WHEN 'owner' THEN 0 ELSE 1 END AS k1, hp.id AS k2
		   FROM household_parents hp
		   WHERE hp.household_id = ? AND hp.status = 'active'
		   UNION ALL
		   SELECT u.id, 1, u.chore_rotation_order, u.id
		   FROM household_children hc
		   JOIN users u ON u.id = hc.child_id
		   WHERE hc.household_id = ?
		 ) ORDER BY grp, k1, k2`,
		householdID, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("rotation order: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsMember reports whether userID is an active parent or a child of householdID.
func (s *HouseholdStore) IsMember(householdID, userID int64) (bool, error) {
	id, err := s.HouseholdIDFor(userID)
	if err != nil {
		return false, err
	}
	return id != 0 && id == householdID, nil
}
