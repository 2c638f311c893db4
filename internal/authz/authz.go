package authz

import (
	"context"
	"fmt"
	"strings"

	"teaminova/internal/viewmodel"
)

// MaskToken replaces the hidden part of an email's local part.
const MaskToken = "***"

// ForbiddenError indicates a missing permission.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not permitted to %s", e.Action)
}

// Viewer is the authenticated identity making a request.
type Viewer struct {
	ProfileID string `json:"profile_id"`
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// PolicyEngine answers the store-side policy questions.
type PolicyEngine interface {
	CanViewEmail(ctx context.Context, viewerID, targetID string) (bool, error)
	IsAdministrator(ctx context.Context, viewerID string) (bool, error)
	CanDeleteIssue(ctx context.Context, viewerID, issueID string) (bool, error)
}

// MaskEmail keeps min(3, len(local)/2) leading characters of the local part.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return MaskToken
	}
	local, domain := []rune(email[:at]), email[at+1:]
	visible := len(local) / 2
	if visible > 3 {
		visible = 3
	}
	return string(local[:visible]) + MaskToken + "@" + domain
}

type Filter struct {
	Policy PolicyEngine
	// LegacyAdminEmail grants administration by email match. Empty disables it.
	LegacyAdminEmail string
}

// IsAdministrator is the single administrator check: legacy email match or store policy.
func (f Filter) IsAdministrator(ctx context.Context, v Viewer) (bool, error) {
	if f.LegacyAdminEmail != "" && v.Email != "" && strings.EqualFold(strings.TrimSpace(v.Email), strings.TrimSpace(f.LegacyAdminEmail)) {
		return true, nil
	}
	if f.Policy == nil || v.ProfileID == "" {
		return false, nil
	}
	return f.Policy.IsAdministrator(ctx, v.ProfileID)
}

func (f Filter) RequireAdministrator(ctx context.Context, v Viewer, action string) error {
	ok, err := f.IsAdministrator(ctx, v)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Action: action}
	}
	return nil
}

// RevealEmails masks the email of every member the viewer may not see in full.
func (f Filter) RevealEmails(ctx context.Context, v Viewer, members []viewmodel.Member) ([]viewmodel.Member, error) {
	out := make([]viewmodel.Member, len(members))
	for i, m := range members {
		visible, err := f.canViewEmail(ctx, v, m.ID)
		if err != nil {
			return nil, err
		}
		if !visible {
			m.Email = MaskEmail(m.Email)
		}
		m.EmailVisible = visible
		out[i] = m
	}
	return out, nil
}

// MaskPeople masks, in place, the email of each person the viewer may not
// see in full. Nil entries are skipped; each target is decided once per call.
func (f Filter) MaskPeople(ctx context.Context, v Viewer, people ...*viewmodel.Person) error {
	decided := make(map[string]bool)
	for _, p := range people {
		if p == nil || p.Email == "" {
			continue
		}
		visible, ok := decided[p.ID]
		if !ok {
			var err error
			if visible, err = f.canViewEmail(ctx, v, p.ID); err != nil {
				return err
			}
			decided[p.ID] = visible
		}
		if !visible {
			p.Email = MaskEmail(p.Email)
		}
	}
	return nil
}

func (f Filter) canViewEmail(ctx context.Context, v Viewer, targetID string) (bool, error) {
	if f.Policy == nil || v.ProfileID == "" || targetID == "" {
		return false, nil
	}
	return f.Policy.CanViewEmail(ctx, v.ProfileID, targetID)
}

// CanEditIssue permits edits only by the issue's author, matched by account email.
func CanEditIssue(v Viewer, issue viewmodel.Issue) bool {
	if v.Email == "" || issue.Author.Email == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(v.Email), strings.TrimSpace(issue.Author.Email))
}

func (f Filter) CanDeleteIssue(ctx context.Context, v Viewer, issueID string) (bool, error) {
	if f.Policy == nil || v.ProfileID == "" {
		return false, nil
	}
	return f.Policy.CanDeleteIssue(ctx, v.ProfileID, issueID)
}
