package repo

import (
	"context"
	"database/sql"
	"strings"

	"teaminova/internal/domain"
)

const profileSelect = `SELECT id,account_id,name,email,access_level,avatar_url,created_at FROM profiles`

func scanProfile(s scanner) (domain.Profile, error) {
	var p domain.Profile
	var avatar sql.NullString
	err := s.Scan(&p.ID, &p.AccountID, &p.Name, &p.Email, &p.AccessLevel, &avatar, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.AvatarURL = ptr(avatar)
	return p, err
}

func (r Repo) InsertProfile(ctx context.Context, p domain.Profile) error {
	if p.AccessLevel == "" {
		p.AccessLevel = "user"
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO profiles(id,account_id,name,email,access_level,avatar_url,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.AccountID, p.Name, p.Email, p.AccessLevel, nullableStringPtr(p.AvatarURL), p.CreatedAt)
	return err
}

func (r Repo) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx, profileSelect+` WHERE id=?`, id))
}

func (r Repo) GetProfileByAccount(ctx context.Context, accountID string) (domain.Profile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx, profileSelect+` WHERE account_id=?`, accountID))
}

// FindProfile matches value case-insensitively against email first, then name.
func (r Repo) FindProfile(ctx context.Context, value string) (domain.Profile, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return domain.Profile{}, ErrNotFound
	}
	p, err := scanProfile(r.DB.QueryRowContext(ctx, profileSelect+` WHERE LOWER(email)=LOWER(?) LIMIT 1`, v))
	if err != ErrNotFound {
		return p, err
	}
	return scanProfile(r.DB.QueryRowContext(ctx, profileSelect+` WHERE LOWER(name)=LOWER(?) ORDER BY created_at LIMIT 1`, v))
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.DB.QueryContext(ctx, profileSelect+` ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProfile(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "profiles", id)
}

func (r Repo) ListRoles(ctx context.Context, profileID string) ([]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role FROM user_roles WHERE profile_id=? ORDER BY created_at, role`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListAllRoles returns every role row keyed by profile id.
func (r Repo) ListAllRoles(ctx context.Context) (map[string][]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT profile_id, role FROM user_roles ORDER BY profile_id, created_at, role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]domain.Role{}
	for rows.Next() {
		var id string
		var role domain.Role
		if err := rows.Scan(&id, &role); err != nil {
			return nil, err
		}
		res[id] = append(res[id], role)
	}
	return res, rows.Err()
}

func (r Repo) AssignRole(ctx context.Context, a domain.RoleAssignment) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO user_roles(profile_id, role, created_at) VALUES (?,?,?) ON CONFLICT(profile_id, role) DO NOTHING`,
		a.ProfileID, string(a.Role), a.CreatedAt)
	return err
}

func (r Repo) ClearRoles(ctx context.Context, profileID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM user_roles WHERE profile_id=?`, profileID)
	return err
}
