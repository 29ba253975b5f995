package repo_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cardentity "github.com/ovaphlow/pitchfork/service-user-go/internal/card/entity"
	cardrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/card/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/testutil"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
)

func newUser(id, name, surname string) *entity.User {
	now := time.Now().UTC().Truncate(time.Second)
	return &entity.User{
		ID:        id,
		Name:      name,
		Surname:   surname,
		BirthDate: database.NewDate(1990, time.May, 17),
		Email:     id + "@example.com",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUserRepoCreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := repo.NewUserRepo(testutil.OpenSQLite(t))

	u := newUser("u1", "Alice", "Smith")
	require.NoError(t, r.Create(ctx, u))

	got, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "Smith", got.Surname)
	assert.Equal(t, u.BirthDate, got.BirthDate)
	assert.Equal(t, "u1@example.com", got.Email)
	assert.True(t, got.Active)
	assert.WithinDuration(t, u.CreatedAt, got.CreatedAt, time.Second)

	_, err = r.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	ok, err := r.Exists(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserRepoDuplicateID(t *testing.T) {
	ctx := context.Background()
	r := repo.NewUserRepo(testutil.OpenSQLite(t))

	require.NoError(t, r.Create(ctx, newUser("u1", "Alice", "Smith")))
	err := r.Create(ctx, newUser("u1", "Other", "Person"))
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err), "got %v", err)
}

func TestUserRepoUpdate(t *testing.T) {
	ctx := context.Background()
	r := repo.NewUserRepo(testutil.OpenSQLite(t))
	require.NoError(t, r.Create(ctx, newUser("u1", "Alice", "Smith")))
	require.NoError(t, r.SetActive(ctx, "u1", false, time.Now().UTC()))

	in := &entity.User{
		ID:        "u1",
		Name:      "Alicia",
		Surname:   "Jones",
		Email:     "alicia@example.com",
		BirthDate: database.NewDate(1991, time.June, 1),
		Active:    true,
		UpdatedAt: time.Now().UTC(),
	}
	out, err := r.Update(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", out.Name)
	assert.Equal(t, "Jones", out.Surname)
	assert.Equal(t, "alicia@example.com", out.Email)
	assert.Equal(t, in.BirthDate, out.BirthDate)
	assert.False(t, out.Active, "update never touches the active flag")

	in.ID = "missing"
	_, err = r.Update(ctx, in)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUserRepoSetActive(t *testing.T) {
	ctx := context.Background()
	r := repo.NewUserRepo(testutil.OpenSQLite(t))
	require.NoError(t, r.Create(ctx, newUser("u1", "Alice", "Smith")))

	require.NoError(t, r.SetActive(ctx, "u1", false, time.Now().UTC()))
	got, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.Active)

	require.NoError(t, r.SetActive(ctx, "u1", false, time.Now().UTC()), "flips are idempotent")
	require.NoError(t, r.SetActive(ctx, "u1", true, time.Now().UTC()))
	got, err = r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.Active)

	assert.ErrorIs(t, r.SetActive(ctx, "missing", true, time.Now().UTC()), sql.ErrNoRows)
}

func TestUserRepoDeleteCascadesCards(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t)
	users := repo.NewUserRepo(db)
	cards := cardrepo.NewCardRepo(db)

	require.NoError(t, users.Create(ctx, newUser("u1", "Alice", "Smith")))
	now := time.Now().UTC()
	require.NoError(t, cards.CreateLimited(ctx, &cardentity.Card{
		ID:             "c1",
		UserID:         "u1",
		Number:         "4111111111111111",
		Holder:         "ALICE SMITH",
		ExpirationDate: database.NewDate(2040, time.January, 1),
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, 5))

	require.NoError(t, users.Delete(ctx, "u1"))
	_, err := users.GetByID(ctx, "u1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = cards.GetByID(ctx, "c1")
	assert.ErrorIs(t, err, sql.ErrNoRows, "cards are removed with their owner")

	assert.NoError(t, users.Delete(ctx, "u1"), "deleting twice is fine")
}

func TestUserRepoSearch(t *testing.T) {
	ctx := context.Background()
	r := repo.NewUserRepo(testutil.OpenSQLite(t))
	for _, u := range []*entity.User{
		newUser("u1", "Andrew", "Black"),
		newUser("u2", "Anna", "White"),
		newUser("u3", "Bob", "Brown"),
	} {
		require.NoError(t, r.Create(ctx, u))
	}

	all, err := r.Search(ctx, database.Predicate{}, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Total)
	assert.Len(t, all.Items, 3)

	an, err := r.Search(ctx, database.Where(database.ContainsFold(repo.ColName, "an")), 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, an.Total)
	assert.Equal(t, []string{"Andrew", "Anna"}, names(an.Items))

	both, err := r.Search(ctx, database.Where(
		database.ContainsFold(repo.ColName, "AN"),
		database.ContainsFold(repo.ColSurname, "wh"),
	), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Anna"}, names(both.Items))

	paged, err := r.Search(ctx, database.Predicate{}, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, paged.Total)
	assert.Equal(t, 1, paged.Page)
	assert.Equal(t, 2, paged.PageSize)
	assert.Equal(t, []string{"Bob"}, names(paged.Items))
}

func names(users []entity.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Name)
	}
	return out
}
