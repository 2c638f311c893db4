package repo

import "context"

// Authorization policy functions evaluated in the store.

const adminPredicate = `EXISTS (SELECT 1 FROM profiles v WHERE v.id=? AND (v.access_level='administrator'
OR EXISTS (SELECT 1 FROM user_roles r WHERE r.profile_id=v.id AND r.role='administrator')))`

// IsAdministrator reports whether the profile holds the administrator access level or role.
func (r Repo) IsAdministrator(ctx context.Context, viewerID string) (bool, error) {
	if viewerID == "" {
		return false, nil
	}
	var ok bool
	err := r.DB.QueryRowContext(ctx, `SELECT `+adminPredicate, viewerID).Scan(&ok)
	return ok, err
}

// CanViewEmail reports whether viewerID may read targetID's full email: owner or administrator.
func (r Repo) CanViewEmail(ctx context.Context, viewerID, targetID string) (bool, error) {
	if viewerID == "" {
		return false, nil
	}
	if viewerID == targetID {
		return true, nil
	}
	return r.IsAdministrator(ctx, viewerID)
}

// CanDeleteIssue reports whether viewerID may delete the issue; deletion is administrator-only.
func (r Repo) CanDeleteIssue(ctx context.Context, viewerID, issueID string) (bool, error) {
	if viewerID == "" {
		return false, nil
	}
	var ok bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM issues WHERE id=?) AND `+adminPredicate, issueID, viewerID).Scan(&ok)
	return ok, err
}
