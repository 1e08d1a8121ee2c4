package fakeprofilerepo_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-clinic-session/profiles"
	fakeprofilerepo "github.com/jrsteele09/go-clinic-session/profiles/repofake"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := fakeprofilerepo.NewFakeProfileRepo()

	p := &profiles.Profile{UserID: "user-1", FullName: "Ana Ruiz", Role: profiles.RoleDoctor, Active: true}
	require.NoError(t, repo.Insert(ctx, p))
	require.NotEmpty(t, p.ID)
	require.False(t, p.CreatedAt.IsZero())

	got, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, profiles.RoleDoctor, got.Role)

	got.FullName = "changed"
	again, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "Ana Ruiz", again.FullName)

	require.ErrorIs(t, repo.Insert(ctx, &profiles.Profile{UserID: "user-1"}), profiles.ErrDuplicate)
}

func TestGetMissing(t *testing.T) {
	_, err := fakeprofilerepo.NewFakeProfileRepo().GetByUserID(context.Background(), "nobody")
	require.ErrorIs(t, err, profiles.ErrNotFound)
}

func TestUpdateAndSetActive(t *testing.T) {
	ctx := context.Background()
	repo := fakeprofilerepo.NewFakeProfileRepo()
	require.NoError(t, repo.Insert(ctx, &profiles.Profile{UserID: "user-1", FullName: "Ana", Role: profiles.RoleCashier, Active: true}))

	require.NoError(t, repo.Update(ctx, &profiles.Profile{UserID: "user-1", FullName: "Ana Ruiz", Role: profiles.RoleAdmin, Active: true}))
	require.NoError(t, repo.SetActive(ctx, "user-1", false))

	got, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "Ana Ruiz", got.FullName)
	require.Equal(t, profiles.RoleAdmin, got.Role)
	require.False(t, got.Active)

	require.ErrorIs(t, repo.Update(ctx, &profiles.Profile{UserID: "missing"}), profiles.ErrNotFound)
	require.ErrorIs(t, repo.SetActive(ctx, "missing", true), profiles.ErrNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	repo := fakeprofilerepo.NewFakeProfileRepo()
	for _, name := range []string{"Carla", "Ana", "Beto"} {
		require.NoError(t, repo.Insert(ctx, &profiles.Profile{UserID: name, FullName: name, Role: profiles.RoleDoctor}))
	}

	page, err := repo.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Profiles, 2)
	require.Equal(t, "Ana", page.Profiles[0].FullName)
	require.Equal(t, "Beto", page.Profiles[1].FullName)

	page, err = repo.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Profiles, 1)
	require.Equal(t, "Carla", page.Profiles[0].FullName)

	page, err = repo.List(ctx, 5, 2)
	require.NoError(t, err)
	require.Empty(t, page.Profiles)
}
