package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"teaminova/internal/authz"
	"teaminova/internal/db"
	"teaminova/internal/derive"
	"teaminova/internal/domain"
	"teaminova/internal/events"
	"teaminova/internal/identity"
	"teaminova/internal/report"
	"teaminova/internal/repo"
	"teaminova/internal/viewmodel"
)

var (
	cmdRegisterMember = command{"member.register", "member", "Member registered", "Could not register member"}
	cmdSetRole        = command{"member.role", "member", "Role updated", "Could not update role"}
	cmdDeleteMember   = command{"member.delete", "member", "Member deleted", "Could not delete member"}
	cmdPasswordReset  = command{"member.password_reset", "member", "Password reset sent", "Could not send password reset"}
)

type RegisterOptions struct {
	// AccountID links an existing hosted account. Empty creates one through
	// the identity provider.
	AccountID string
	Name      string
	Email     string
	Password  string
	AvatarURL string
}

// RegisterMember creates a profile with the team_member role. The first
// profile in an empty store is given administrator access.
func (e Engine) RegisterMember(ctx context.Context, v authz.Viewer, opts RegisterOptions) (viewmodel.Member, error) {
	var out viewmodel.Member
	err := e.run(ctx, v, cmdRegisterMember, func(ctx context.Context) (string, error) {
		if err := required("name", opts.Name); err != nil {
			return "", err
		}
		if err := required("email", opts.Email); err != nil {
			return "", err
		}
		email := strings.TrimSpace(opts.Email)
		if !strings.Contains(email, "@") {
			return "", invalid("email", "must be an email address")
		}
		if _, err := e.Repo.FindProfile(ctx, email); err == nil {
			return "", invalid("email", "%s is already registered", email)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
		accountID := strings.TrimSpace(opts.AccountID)
		created := false
		if accountID == "" {
			id, err := e.identity().CreateAccount(ctx, email, opts.Password, strings.TrimSpace(opts.Name))
			if err != nil {
				return "", fmt.Errorf("create account: %w", err)
			}
			accountID, created = id, true
		}
		now := e.timestamp()
		profile := domain.Profile{
			ID:          uuid.NewString(),
			AccountID:   accountID,
			Name:        strings.TrimSpace(opts.Name),
			Email:       email,
			AccessLevel: "user",
			AvatarURL:   stringPtr(opts.AvatarURL),
			CreatedAt:   now,
		}
		err := e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			existing, err := r.ListProfiles(ctx)
			if err != nil {
				return err
			}
			if len(existing) == 0 {
				profile.AccessLevel = domain.AccessAdministrator
			}
			if err := r.InsertProfile(ctx, profile); err != nil {
				return fmt.Errorf("insert profile: %w", err)
			}
			if err := r.AssignRole(ctx, domain.RoleAssignment{ProfileID: profile.ID, Role: domain.RoleTeamMember, CreatedAt: now}); err != nil {
				return err
			}
			if err := e.events().Append(ctx, tx, "member.registered", "", "member", profile.ID, actorOr(v, profile.ID), events.EventPayload{"name": profile.Name}); err != nil {
				return err
			}
			out, err = memberView(profile, []domain.Role{domain.RoleTeamMember})
			return err
		})
		if err != nil {
			if created {
				// The store never recorded the profile; drop the account made for it.
				e.dropAccount(context.WithoutCancel(ctx), cmdRegisterMember.action, accountID)
			}
			return profile.ID, err
		}
		e.Directory.Evict(ctx)
		return profile.ID, nil
	})
	return out, err
}

// dropAccount deletes a hosted account. Failures are reported as warnings
// since the store change they follow has already been decided.
func (e Engine) dropAccount(ctx context.Context, action, accountID string) {
	if err := e.identity().DeleteAccount(ctx, accountID); err != nil && !errors.Is(err, identity.ErrNotConfigured) {
		e.reporter().LogError(ctx, err, report.CategoryStore, report.SeverityWarning, map[string]any{
			"command":    action,
			"account_id": accountID,
		})
	}
}

func actorOr(v authz.Viewer, fallback string) string {
	if v.ProfileID != "" {
		return v.ProfileID
	}
	return fallback
}

func memberView(p domain.Profile, roles []domain.Role) (viewmodel.Member, error) {
	m, err := viewmodel.ConvertProfile(p, roles)
	if err != nil {
		return m, err
	}
	m.Role = derive.ResolvePrimaryRole(roles)
	return m, nil
}

func (e Engine) loadMembers(ctx context.Context) ([]viewmodel.Member, error) {
	profiles, err := e.Repo.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := e.Repo.ListAllRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]viewmodel.Member, 0, len(profiles))
	for _, p := range profiles {
		m, err := memberView(p, roles[p.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ListMembers returns the directory with emails masked for the viewer.
func (e Engine) ListMembers(ctx context.Context, v authz.Viewer) ([]viewmodel.Member, error) {
	var out []viewmodel.Member
	err := e.read(ctx, "member.list", func(ctx context.Context) error {
		members, err := e.Directory.Members(ctx, e.loadMembers)
		if err != nil {
			return err
		}
		out, err = e.Authz.RevealEmails(ctx, v, members)
		return err
	})
	return out, err
}

// GetMember returns one profile, masked for the viewer.
func (e Engine) GetMember(ctx context.Context, v authz.Viewer, profileID string) (viewmodel.Member, error) {
	var out viewmodel.Member
	err := e.read(ctx, "member.get", func(ctx context.Context) error {
		m, err := e.loadMember(ctx, e.Repo, profileID)
		if err != nil {
			return err
		}
		masked, err := e.Authz.RevealEmails(ctx, v, []viewmodel.Member{m})
		if err != nil {
			return err
		}
		out = masked[0]
		return nil
	})
	return out, err
}

func (e Engine) loadMember(ctx context.Context, r repo.Repo, profileID string) (viewmodel.Member, error) {
	p, err := r.GetProfile(ctx, profileID)
	if err != nil {
		return viewmodel.Member{}, wrapNotFound(err, "member", profileID)
	}
	roles, err := r.ListRoles(ctx, profileID)
	if err != nil {
		return viewmodel.Member{}, err
	}
	return memberView(p, roles)
}

// SetRole replaces the member's roles with role.
func (e Engine) SetRole(ctx context.Context, v authz.Viewer, profileID string, role domain.Role) (viewmodel.Member, error) {
	var out viewmodel.Member
	err := e.run(ctx, v, cmdSetRole, func(ctx context.Context) (string, error) {
		if err := required("member_id", profileID); err != nil {
			return "", err
		}
		if !role.Valid() {
			return profileID, invalid("role", "unknown role %q", role)
		}
		if err := e.Authz.RequireAdministrator(ctx, v, "change roles"); err != nil {
			return profileID, err
		}
		err := e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			if _, err := r.GetProfile(ctx, profileID); err != nil {
				return wrapNotFound(err, "member", profileID)
			}
			if err := r.ClearRoles(ctx, profileID); err != nil {
				return err
			}
			if err := r.AssignRole(ctx, domain.RoleAssignment{ProfileID: profileID, Role: role, CreatedAt: e.timestamp()}); err != nil {
				return err
			}
			if err := e.events().Append(ctx, tx, "member.role", "", "member", profileID, v.ProfileID, events.EventPayload{"role": role}); err != nil {
				return err
			}
			var err error
			out, err = e.loadMember(ctx, r, profileID)
			return err
		})
		if err != nil {
			return profileID, err
		}
		e.Directory.Evict(ctx)
		return profileID, nil
	})
	return out, err
}

// DeleteMember removes the profile and then the hosted account. Members who
// authored issues cannot be deleted.
func (e Engine) DeleteMember(ctx context.Context, v authz.Viewer, profileID string) error {
	return e.run(ctx, v, cmdDeleteMember, func(ctx context.Context) (string, error) {
		if err := required("member_id", profileID); err != nil {
			return "", err
		}
		if err := e.Authz.RequireAdministrator(ctx, v, "delete members"); err != nil {
			return profileID, err
		}
		if profileID == v.ProfileID {
			return profileID, invalid("member_id", "you cannot delete your own profile")
		}
		var accountID string
		err := e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			p, err := r.GetProfile(ctx, profileID)
			if err != nil {
				return wrapNotFound(err, "member", profileID)
			}
			n, err := r.CountIssuesByAuthor(ctx, profileID)
			if err != nil {
				return err
			}
			if n > 0 {
				return MemberHasIssuesError{ProfileID: profileID, Count: n}
			}
			if err := r.DeleteProfile(ctx, profileID); err != nil {
				return wrapNotFound(err, "member", profileID)
			}
			accountID = p.AccountID
			return e.events().Append(ctx, tx, "member.deleted", "", "member", profileID, v.ProfileID, events.EventPayload{"name": p.Name})
		})
		if err != nil {
			return profileID, err
		}
		e.Directory.Evict(ctx)
		e.dropAccount(ctx, cmdDeleteMember.action, accountID)
		return profileID, nil
	})
}

// SendPasswordReset asks the identity provider for a reset link for the
// member's email and returns it.
func (e Engine) SendPasswordReset(ctx context.Context, v authz.Viewer, profileID string) (string, error) {
	var link string
	err := e.run(ctx, v, cmdPasswordReset, func(ctx context.Context) (string, error) {
		if err := required("member_id", profileID); err != nil {
			return "", err
		}
		if err := e.Authz.RequireAdministrator(ctx, v, "send password resets"); err != nil {
			return profileID, err
		}
		p, err := e.Repo.GetProfile(ctx, profileID)
		if err != nil {
			return profileID, wrapNotFound(err, "member", profileID)
		}
		link, err = e.identity().PasswordResetLink(ctx, p.Email)
		if err != nil {
			return profileID, fmt.Errorf("password reset: %w", err)
		}
		return profileID, nil
	})
	return link, err
}

// ViewerForAccount resolves an authenticated hosted account to the viewer
// the engine acts on behalf of.
func (e Engine) ViewerForAccount(ctx context.Context, accountID string) (authz.Viewer, error) {
	var v authz.Viewer
	err := e.read(ctx, "member.viewer", func(ctx context.Context) error {
		p, err := e.Repo.GetProfileByAccount(ctx, accountID)
		if err != nil {
			return wrapNotFound(err, "account", accountID)
		}
		v = authz.Viewer{ProfileID: p.ID, AccountID: p.AccountID, Email: p.Email}
		return nil
	})
	return v, err
}

// ViewerForProfile resolves a profile id, email or name to a viewer.
func (e Engine) ViewerForProfile(ctx context.Context, value string) (authz.Viewer, error) {
	var v authz.Viewer
	err := e.read(ctx, "member.viewer", func(ctx context.Context) error {
		p, err := e.Repo.GetProfile(ctx, value)
		if errors.Is(err, repo.ErrNotFound) {
			p, err = e.Repo.FindProfile(ctx, value)
		}
		if err != nil {
			return wrapNotFound(err, "member", value)
		}
		v = authz.Viewer{ProfileID: p.ID, AccountID: p.AccountID, Email: p.Email}
		return nil
	})
	return v, err
}
