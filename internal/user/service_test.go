package user_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/cache"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/card"
	cardentity "github.com/ovaphlow/pitchfork/service-user-go/internal/card/entity"
	cardrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/card/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/testutil"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
)

type fixture struct {
	users *user.UserService
	cards *card.CardService
	cache *cache.Memory
}

func newFixture(t *testing.T) fixture {
	db := testutil.OpenSQLite(t)
	mem := cache.NewMemory(100, time.Minute)
	c := cache.NewCoherent(mem)
	return fixture{
		users: user.NewUserService(db, c, nil, nil),
		cards: card.NewCardService(db, c, nil),
		cache: mem,
	}
}

func alice(id string) *entity.User {
	return &entity.User{
		ID:        id,
		Name:      "Alice",
		Surname:   "Smith",
		Email:     "alice@example.com",
		BirthDate: database.NewDate(1990, time.May, 17),
	}
}

func cardFor(owner string) *cardentity.Card {
	return &cardentity.Card{
		UserID:         owner,
		Number:         "4111111111111111",
		Holder:         "ALICE SMITH",
		ExpirationDate: database.NewDate(2040, time.January, 31),
	}
}

func cachedUser(t *testing.T, c cache.Cache, id string) (user.View, bool) {
	t.Helper()
	var v user.View
	ok, err := c.Get(context.Background(), cache.Users, id, &v)
	require.NoError(t, err)
	return v, ok
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	in := alice("")
	in.Active = false
	v, err := f.users.Create(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID, "an id is generated when none is supplied")
	assert.True(t, v.Active, "new users are active")
	assert.NotNil(t, v.Cards)
	assert.Empty(t, v.Cards)
	assert.False(t, v.CreatedAt.IsZero())

	cached, ok := cachedUser(t, f.cache, v.ID)
	require.True(t, ok, "create populates the cache")
	assert.Equal(t, "Alice", cached.Name)

	_, err = f.users.Create(ctx, alice("U1"))
	require.NoError(t, err)
	_, err = f.users.Create(ctx, alice("U1"))
	assert.ErrorIs(t, err, user.ErrDuplicateIdentity)
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = f.users.Create(ctx, alice("U1"))
	require.NoError(t, err)
	_, err = f.cards.Create(ctx, cardFor("U1"))
	require.NoError(t, err)

	_, ok := cachedUser(t, f.cache, "U1")
	require.False(t, ok, "card creation evicts the owner")

	v, err := f.users.GetByID(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", v.Name)
	require.Len(t, v.Cards, 1)
	assert.Equal(t, "4111111111111111", v.Cards[0].Number)

	cached, ok := cachedUser(t, f.cache, "U1")
	require.True(t, ok, "a miss populates the cache")
	assert.Len(t, cached.Cards, 1)

	v.Cards[0].Holder = "changed by caller"
	again, err := f.users.GetByID(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "ALICE SMITH", again.Cards[0].Holder, "callers get their own copy")
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, n := range []struct{ id, name, surname string }{
		{"u1", "Andrew", "Black"},
		{"u2", "Anna", "White"},
		{"u3", "Bob", "Brown"},
	} {
		u := alice(n.id)
		u.Name, u.Surname = n.name, n.surname
		_, err := f.users.Create(ctx, u)
		require.NoError(t, err)
	}

	all, err := f.users.Search(ctx, "", "  ", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Total)
	assert.Equal(t, database.DefaultPageSize, all.PageSize)

	an, err := f.users.Search(ctx, "an", "", 0, 10)
	require.NoError(t, err)
	require.Len(t, an.Items, 2)
	assert.Equal(t, "Andrew", an.Items[0].Name)
	assert.Equal(t, "Anna", an.Items[1].Name)

	both, err := f.users.Search(ctx, "an", "WHITE", 0, 10)
	require.NoError(t, err)
	require.Len(t, both.Items, 1)
	assert.Equal(t, "Anna", both.Items[0].Name)

	none, err := f.users.Search(ctx, "%", "", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, none.Items, "wildcards are matched literally")
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.users.Update(ctx, "missing", alice(""))
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = f.users.Create(ctx, alice("U1"))
	require.NoError(t, err)
	require.NoError(t, f.users.Deactivate(ctx, "U1"))

	in := alice("ignored")
	in.Name = "Alicia"
	in.Email = "alicia@example.com"
	in.Active = true
	v, err := f.users.Update(ctx, "U1", in)
	require.NoError(t, err)
	assert.Equal(t, "U1", v.ID, "the path id wins over the body")
	assert.Equal(t, "Alicia", v.Name)
	assert.Equal(t, "alicia@example.com", v.Email)
	assert.False(t, v.Active, "update does not touch the active flag")

	cached, ok := cachedUser(t, f.cache, "U1")
	require.True(t, ok, "update refreshes the cache")
	assert.Equal(t, "Alicia", cached.Name)
}

func TestActivateDeactivate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.users.Activate(ctx, "missing"), user.ErrNotFound)
	assert.ErrorIs(t, f.users.Deactivate(ctx, "missing"), user.ErrNotFound)

	_, err := f.users.Create(ctx, alice("U1"))
	require.NoError(t, err)

	require.NoError(t, f.users.Deactivate(ctx, "U1"))
	_, ok := cachedUser(t, f.cache, "U1")
	assert.False(t, ok, "deactivate evicts")

	v, err := f.users.GetByID(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, v.Active)

	require.NoError(t, f.users.Deactivate(ctx, "U1"), "idempotent")
	require.NoError(t, f.users.Activate(ctx, "U1"))
	v, err = f.users.GetByID(ctx, "U1")
	require.NoError(t, err)
	assert.True(t, v.Active)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.NoError(t, f.users.Delete(ctx, "missing"), "deleting an unknown user succeeds")

	_, err := f.users.Create(ctx, alice("U1"))
	require.NoError(t, err)
	c, err := f.cards.Create(ctx, cardFor("U1"))
	require.NoError(t, err)
	_, err = f.users.GetByID(ctx, "U1")
	require.NoError(t, err)
	_, err = f.cards.GetByID(ctx, c.ID)
	require.NoError(t, err)

	require.NoError(t, f.users.Delete(ctx, "U1"))

	_, err = f.users.GetByID(ctx, "U1")
	assert.ErrorIs(t, err, user.ErrNotFound)
	_, err = f.cards.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, card.ErrNotFound, "cascaded cards are gone from storage and cache")
}

// failingCache wraps a working cache and fails the selected operations.
type failingCache struct {
	cache.Cache
	failPut   bool
	failEvict bool
}

var errCacheDown = errors.New("cache down")

func (c *failingCache) Put(ctx context.Context, ns cache.Namespace, key string, v any) error {
	if c.failPut {
		return errCacheDown
	}
	return c.Cache.Put(ctx, ns, key, v)
}

func (c *failingCache) Evict(ctx context.Context, ns cache.Namespace, key string) error {
	if c.failEvict {
		return errCacheDown
	}
	return c.Cache.Evict(ctx, ns, key)
}

func TestCacheFailures(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t)
	fc := &failingCache{Cache: cache.NewMemory(100, time.Minute)}
	svc := user.NewUserService(db, cache.NewCoherent(fc), nil, nil)

	fc.failPut = true
	_, err := svc.Create(ctx, alice("U1"))
	require.NoError(t, err, "a failed population is not fatal")
	_, err = svc.GetByID(ctx, "U1")
	require.NoError(t, err)

	fc.failEvict = true
	err = svc.Deactivate(ctx, "U1")
	assert.ErrorIs(t, err, errCacheDown, "a failed eviction is reported")
	_, err = svc.Update(ctx, "U1", alice(""))
	assert.ErrorIs(t, err, errCacheDown, "update cannot leave a stale entry behind")
}

// heldLister parks the next ListByUser call, after it has read from storage,
// until release is closed.
type heldLister struct {
	user.CardLister
	mu      sync.Mutex
	parked  chan struct{}
	release chan struct{}
}

func (l *heldLister) hold() (parked, release chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parked, l.release = make(chan struct{}), make(chan struct{})
	return l.parked, l.release
}

func (l *heldLister) ListByUser(ctx context.Context, userID string) ([]cardentity.Card, error) {
	cards, err := l.CardLister.ListByUser(ctx, userID)
	l.mu.Lock()
	parked, release := l.parked, l.release
	l.parked, l.release = nil, nil
	l.mu.Unlock()
	if parked != nil {
		close(parked)
		<-release
	}
	return cards, err
}

type viewResult struct {
	view *user.View
	err  error
}

func TestReadAfterCardCreateSeesCard(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t)
	mem := cache.NewMemory(100, time.Minute)
	shared := cache.NewCoherent(mem)
	lister := &heldLister{CardLister: cardrepo.NewCardRepo(db)}
	users := user.NewUserService(db, shared, nil, lister)
	cards := card.NewCardService(db, shared, nil)

	_, err := users.Create(ctx, alice("U1"))
	require.NoError(t, err)
	require.NoError(t, mem.Evict(ctx, cache.Users, "U1"))

	parked, release := lister.hold()
	early := make(chan viewResult, 1)
	go func() {
		v, err := users.GetByID(ctx, "U1")
		early <- viewResult{v, err}
	}()
	<-parked

	_, err = cards.Create(ctx, cardFor("U1"))
	require.NoError(t, err)

	late := make(chan viewResult, 1)
	go func() {
		v, err := users.GetByID(ctx, "U1")
		late <- viewResult{v, err}
	}()
	var got viewResult
	select {
	case got = <-late:
	case <-time.After(time.Second):
		close(release)
		got = <-late
		release = nil
	}
	if release != nil {
		close(release)
	}
	require.NoError(t, got.err)
	assert.Len(t, got.view.Cards, 1, "a read started after the card create sees the card")

	r := <-early
	require.NoError(t, r.err)
	assert.Empty(t, r.view.Cards, "the earlier read predates the card")

	cached, ok := cachedUser(t, mem, "U1")
	require.True(t, ok)
	assert.Len(t, cached.Cards, 1, "the earlier load is not written back over the fresh entry")

	v, err := users.GetByID(ctx, "U1")
	require.NoError(t, err)
	assert.Len(t, v.Cards, 1)
}
