package users_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/tutorhub-session/internal/utils"
	"github.com/jrsteele09/tutorhub-session/users"
	fakeuserrepo "github.com/jrsteele09/tutorhub-session/users/repofake"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := users.ParseRole(" coach ")
	require.NoError(t, err)
	require.Equal(t, users.RoleCoach, r)

	_, err = users.ParseRole("tutor")
	require.Error(t, err)
}

func TestPatch_Apply(t *testing.T) {
	login := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	u := &users.User{ID: "u1", Email: "a@b.com", FirstName: "Ann", LastName: "Lee", Role: users.RoleParent, LastLogin: &login}

	merged, err := users.Patch{FirstName: utils.Ptr("Anna"), IsVerified: utils.Ptr(true)}.Apply(u)
	require.NoError(t, err)
	require.Equal(t, "Anna", merged.FirstName)
	require.Equal(t, "Lee", merged.LastName)
	require.True(t, merged.IsVerified)
	require.Equal(t, "u1", merged.ID)

	// The original is untouched and no pointer is shared.
	require.Equal(t, "Ann", u.FirstName)
	*merged.LastLogin = merged.LastLogin.Add(time.Hour)
	require.Equal(t, login, *u.LastLogin)
}

func TestPatch_ApplyRejectsUnknownRole(t *testing.T) {
	u := &users.User{ID: "u1", Role: users.RoleParent}
	_, err := users.Patch{Role: utils.Ptr(users.Role("TUTOR"))}.Apply(u)
	require.Error(t, err)
}

func TestUser_Valid(t *testing.T) {
	require.False(t, (*users.User)(nil).Valid())
	require.False(t, (&users.User{ID: " ", Role: users.RoleAdmin}).Valid())
	require.False(t, (&users.User{ID: "u1", Role: "GUEST"}).Valid())
	require.True(t, (&users.User{ID: "u1", Role: users.RoleAdmin}).Valid())
}

func TestPasswordHash(t *testing.T) {
	require.NoError(t, users.ValidatePasswordStrength("Secret1!"))
	require.Error(t, users.ValidatePasswordStrength("secret"))

	hash, err := users.HashPassword("Secret1!")
	require.NoError(t, err)
	require.True(t, users.CheckPasswordHash("Secret1!", hash))
	require.False(t, users.CheckPasswordHash("Secret2!", hash))
}

func TestRole_Display(t *testing.T) {
	require.Equal(t, "coach", users.RoleCoach.Lower())
	require.Equal(t, "Admin", users.RoleAdmin.Title())
	require.Equal(t, "", users.Role("").Title())
}

func TestFakeUserRepo_UnknownUser(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	_, err := repo.GetByEmail("nobody@example.com")
	require.ErrorIs(t, err, users.ErrNotFound)
	_, err = repo.GetByID("missing")
	require.ErrorIs(t, err, users.ErrNotFound)
}
