package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is an access level
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// User is a registered account with an optional linked Riot identity
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	RoleID         int64     `json:"role_id"`
	RoleName       string    `json:"role"`
	PUUID          string    `json:"puuid,omitempty"`
	GameName       string    `json:"game_name,omitempty"`
	TagLine        string    `json:"tag_line,omitempty"`
	Region         string    `json:"region,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.RoleName == RoleAdmin
}

// RiotLinked reports whether a Riot account is attached
func (u *User) RiotLinked() bool {
	return u.PUUID != "" && u.Region != ""
}

// NewUser is the input to CreateUser
type NewUser struct {
	Email          string
	Username       string
	HashedPassword string
	RoleName       string // Defaults to RoleUser
}

const userColumns = `
	u.id, u.email, u.username, u.hashed_password, u.role_id, r.name,
	u.puuid, u.game_name, u.tag_line, u.region, u.created_at`

const userFrom = ` FROM users u JOIN roles r ON r.id = u.role_id `

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		puuid     sql.NullString
		createdAt int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.HashedPassword, &u.RoleID, &u.RoleName,
		&puuid, &u.GameName, &u.TagLine, &u.Region, &createdAt)
	if err != nil {
		return nil, err
	}
	u.PUUID = puuid.String
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

func (s *Store) getUser(ctx context.Context, where string, args ...any) (*User, error) {
	row := s.queryRow(ctx, "SELECT"+userColumns+userFrom+"WHERE "+where, args...)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// CreateUser inserts a user and returns it with its role resolved
func (s *Store) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	roleName := nu.RoleName
	if roleName == "" {
		roleName = RoleUser
	}
	role, err := s.GetRoleByName(ctx, roleName)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.queryRow(ctx, `
		INSERT INTO users (email, username, hashed_password, role_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, strings.ToLower(strings.TrimSpace(nu.Email)), strings.TrimSpace(nu.Username),
		nu.HashedPassword, role.ID, time.Now().UnixMilli()).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID returns the user with the given id
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, "u.id = ?", id)
}

// GetUserByEmail returns the user with the given email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "u.email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// GetUserByUsername returns the user with the given username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "u.username = ?", strings.TrimSpace(username))
}

// GetUserByIdentifier matches either email or username
func (s *Store) GetUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	return s.getUser(ctx, "u.email = ? OR u.username = ?", strings.ToLower(identifier), identifier)
}

// GetUserByPUUID returns the user linked to a Riot puuid
func (s *Store) GetUserByPUUID(ctx context.Context, puuid string) (*User, error) {
	return s.getUser(ctx, "u.puuid = ?", puuid)
}

// ListUsers returns every user ordered by id
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.query(ctx, "SELECT"+userColumns+userFrom+"ORDER BY u.id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ListLinkedUsers returns users with a Riot account attached
func (s *Store) ListLinkedUsers(ctx context.Context) ([]User, error) {
	rows, err := s.query(ctx, "SELECT"+userColumns+userFrom+
		"WHERE u.puuid IS NOT NULL AND u.puuid <> '' AND u.region <> '' ORDER BY u.id")
	if err != nil {
		return nil, fmt.Errorf("failed to list linked users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user and everything they own
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	// Children first; SQLite only cascades with foreign_keys enabled
	if _, err := s.exec(ctx, `DELETE FROM games WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete user games: %w", err)
	}
	if _, err := s.exec(ctx, `DELETE FROM matches WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete user matches: %w", err)
	}
	res, err := s.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(res)
}

// SetUserRole assigns the named role to a user
func (s *Store) SetUserRole(ctx context.Context, id int64, roleName string) (*User, error) {
	role, err := s.GetRoleByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	res, err := s.exec(ctx, `UPDATE users SET role_id = ? WHERE id = ?`, role.ID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to set role: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

// LinkRiotAccount stores the Riot identity for a user, lower-cased
func (s *Store) LinkRiotAccount(ctx context.Context, id int64, puuid, gameName, tagLine, region string) (*User, error) {
	res, err := s.exec(ctx, `
		UPDATE users SET puuid = ?, game_name = ?, tag_line = ?, region = ?
		WHERE id = ?
	`, puuid, strings.ToLower(gameName), strings.ToLower(tagLine), strings.ToLower(region), id)
	if err != nil {
		return nil, fmt.Errorf("failed to link riot account: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

// GetRoleByName returns the role with the given name
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var r Role
	err := s.queryRow(ctx, `SELECT id, name, description FROM roles WHERE name = ?`,
		strings.ToLower(strings.TrimSpace(name))).Scan(&r.ID, &r.Name, &r.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &r, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
