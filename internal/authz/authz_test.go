package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaminova/internal/viewmodel"
)

type stubPolicy struct {
	admins  map[string]bool
	calls   int
	failure error
}

func (s *stubPolicy) CanViewEmail(_ context.Context, viewerID, targetID string) (bool, error) {
	s.calls++
	if s.failure != nil {
		return false, s.failure
	}
	return viewerID == targetID || s.admins[viewerID], nil
}

func (s *stubPolicy) IsAdministrator(_ context.Context, viewerID string) (bool, error) {
	s.calls++
	return s.admins[viewerID], s.failure
}

func (s *stubPolicy) CanDeleteIssue(_ context.Context, viewerID, _ string) (bool, error) {
	s.calls++
	return s.admins[viewerID], s.failure
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"alexander@x.com": "ale***@x.com",
		"ale@x.com":       "a***@x.com",
		"a@x.com":         "***@x.com",
		"ab@x.com":        "a***@x.com",
		"abcdef@x.com":    "abc***@x.com",
		"no-at-sign":      "***",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskEmail(in), in)
	}
}

func TestRevealEmails(t *testing.T) {
	policy := &stubPolicy{admins: map[string]bool{"admin": true}}
	f := Filter{Policy: policy}
	members := []viewmodel.Member{
		{ID: "u1", Email: "alexander@x.com"},
		{ID: "u2", Email: "bea@x.com"},
	}

	out, err := f.RevealEmails(context.Background(), Viewer{ProfileID: "u1"}, members)
	require.NoError(t, err)
	assert.Equal(t, "alexander@x.com", out[0].Email)
	assert.True(t, out[0].EmailVisible)
	assert.Equal(t, "b***@x.com", out[1].Email)
	assert.False(t, out[1].EmailVisible)
	assert.Equal(t, "bea@x.com", members[1].Email, "input must not be mutated")

	out, err = f.RevealEmails(context.Background(), Viewer{ProfileID: "admin"}, members)
	require.NoError(t, err)
	assert.Equal(t, "bea@x.com", out[1].Email)

	out, err = f.RevealEmails(context.Background(), Viewer{}, members)
	require.NoError(t, err)
	assert.Equal(t, "ale***@x.com", out[0].Email)

	policy.failure = errors.New("store down")
	_, err = f.RevealEmails(context.Background(), Viewer{ProfileID: "u1"}, members)
	assert.Error(t, err)
}

func TestMaskPeople(t *testing.T) {
	policy := &stubPolicy{admins: map[string]bool{"admin": true}}
	f := Filter{Policy: policy}
	ctx := context.Background()
	ada := &viewmodel.Person{ID: "admin", Name: "Ada", Email: "ada@example.com"}
	bo := &viewmodel.Person{ID: "u2", Name: "Bo", Email: "bo@example.com"}
	again := &viewmodel.Person{ID: "admin", Name: "Ada", Email: "ada@example.com"}

	require.NoError(t, f.MaskPeople(ctx, Viewer{ProfileID: "u2"}, ada, nil, bo, again))
	assert.Equal(t, "a***@example.com", ada.Email)
	assert.Equal(t, "a***@example.com", again.Email)
	assert.Equal(t, "bo@example.com", bo.Email)
	assert.Equal(t, 2, policy.calls, "each target is decided once")

	carol := &viewmodel.Person{ID: "u3", Email: "carol@example.com"}
	require.NoError(t, f.MaskPeople(ctx, Viewer{ProfileID: "admin"}, carol))
	assert.Equal(t, "carol@example.com", carol.Email)

	dan := &viewmodel.Person{ID: "u4", Email: "dan@example.com"}
	require.NoError(t, f.MaskPeople(ctx, Viewer{}, dan))
	assert.Equal(t, "d***@example.com", dan.Email)

	policy.failure = errors.New("store down")
	assert.Error(t, f.MaskPeople(ctx, Viewer{ProfileID: "u2"}, &viewmodel.Person{ID: "u5", Email: "e@x.com"}))
}

func TestIsAdministratorDualCheck(t *testing.T) {
	policy := &stubPolicy{admins: map[string]bool{"boss": true}}
	f := Filter{Policy: policy, LegacyAdminEmail: "Root@Example.com"}
	ctx := context.Background()

	ok, err := f.IsAdministrator(ctx, Viewer{ProfileID: "u9", Email: "root@example.com"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, policy.calls)

	ok, err = f.IsAdministrator(ctx, Viewer{ProfileID: "boss", Email: "boss@example.com"})
	require.NoError(t, err)
	assert.True(t, ok)

	err = f.RequireAdministrator(ctx, Viewer{ProfileID: "u2", Email: "u2@example.com"}, "change roles")
	var forbidden ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	assert.Equal(t, "change roles", forbidden.Action)

	f.LegacyAdminEmail = ""
	ok, err = f.IsAdministrator(ctx, Viewer{ProfileID: "u9", Email: "root@example.com"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIssueGates(t *testing.T) {
	issue := viewmodel.Issue{ID: "i1", Author: viewmodel.Person{ID: "u1", Email: "Ana@x.com"}}
	assert.True(t, CanEditIssue(Viewer{Email: "ana@x.com"}, issue))
	assert.False(t, CanEditIssue(Viewer{Email: "bo@x.com"}, issue))
	assert.False(t, CanEditIssue(Viewer{}, issue))

	f := Filter{Policy: &stubPolicy{admins: map[string]bool{"admin": true}}}
	ok, err := f.CanDeleteIssue(context.Background(), Viewer{ProfileID: "u1"}, "i1")
	require.NoError(t, err)
	assert.False(t, ok, "authors cannot delete without the admin policy")
	ok, err = f.CanDeleteIssue(context.Background(), Viewer{ProfileID: "admin"}, "i1")
	require.NoError(t, err)
	assert.True(t, ok)
}
