package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/cache"
	cardentity "github.com/ovaphlow/pitchfork/service-user-go/internal/card/entity"
	cardrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/card/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateIdentity = errors.New("user already exists")
)

// Repository is the storage the service needs. *userrepo.UserRepo satisfies it.
type Repository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, u *entity.User) (*entity.User, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, p database.Predicate, page, size int) (database.Page[entity.User], error)
}

// CardLister loads the cards owned by a user.
type CardLister interface {
	ListByUser(ctx context.Context, userID string) ([]cardentity.Card, error)
}

// View is a user together with the cards it owns. It is what gets cached
// under the users namespace.
type View struct {
	entity.User
	Cards []cardentity.Card `json:"payment_cards"`
}

func (v *View) clone() *View {
	out := *v
	out.Cards = append(make([]cardentity.Card, 0, len(v.Cards)), v.Cards...)
	return &out
}

// UserService orchestrates the user lifecycle over storage and cache.
type UserService struct {
	repo   Repository
	cards  CardLister
	cache  *cache.Coherent
	now    func() time.Time
	logger *zap.SugaredLogger
}

// NewUserService wires a service. Nil repositories default to the sqlx ones on db.
// c must be the same Coherent the card service evicts through.
func NewUserService(db *sqlx.DB, c *cache.Coherent, r Repository, cards CardLister) *UserService {
	if r == nil {
		r = userrepo.NewUserRepo(db)
	}
	if cards == nil {
		cards = cardrepo.NewCardRepo(db)
	}
	return &UserService{
		repo:   r,
		cards:  cards,
		cache:  c,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		logger: zap.NewNop().Sugar(),
	}
}

// WithLogger sets the logger used for non-fatal cache population failures.
func (s *UserService) WithLogger(l *zap.SugaredLogger) *UserService {
	if l != nil {
		s.logger = l
	}
	return s
}

// Create stores a new active user. An empty ID gets a generated UUID.
func (s *UserService) Create(ctx context.Context, in *entity.User) (*View, error) {
	u := *in
	if u.ID == "" {
		u.ID = utilities.NewEntityID()
	} else {
		exists, err := s.repo.Exists(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("check user: %w", err)
		}
		if exists {
			return nil, ErrDuplicateIdentity
		}
	}
	now := s.now()
	u.Active = true
	u.CreatedAt, u.UpdatedAt = now, now
	res, err := s.cache.Refresh(cache.Users, u.ID, func() (any, error) {
		if err := s.repo.Create(ctx, &u); err != nil {
			if database.IsUniqueViolation(err) {
				return nil, ErrDuplicateIdentity
			}
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &View{User: u, Cards: []cardentity.Card{}}, nil
	}, s.populate(ctx))
	if err != nil {
		return nil, err
	}
	return res.(*View).clone(), nil
}

// GetByID reads through the cache. Concurrent misses for one id share a single
// load; a load overlapped by an eviction of id is not cached.
func (s *UserService) GetByID(ctx context.Context, id string) (*View, error) {
	var cached View
	hit, err := s.cache.Get(ctx, cache.Users, id, &cached)
	if err != nil {
		return nil, fmt.Errorf("cache get user: %w", err)
	}
	if hit {
		return &cached, nil
	}
	res, err := s.cache.Load(cache.Users, id, func() (any, error) {
		return s.load(ctx, id)
	}, s.populate(ctx))
	if err != nil {
		return nil, err
	}
	return res.(*View).clone(), nil
}

func (s *UserService) load(ctx context.Context, id string) (*View, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return s.withCards(ctx, u)
}

func (s *UserService) withCards(ctx context.Context, u *entity.User) (*View, error) {
	cards, err := s.cards.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return &View{User: *u, Cards: cards}, nil
}

// Search pages through users whose name and surname contain the non-blank
// filters, ignoring case. Results are never cached.
func (s *UserService) Search(ctx context.Context, name, surname string, page, size int) (database.Page[entity.User], error) {
	var p database.Predicate
	if name = strings.TrimSpace(name); name != "" {
		p = p.And(database.ContainsFold(userrepo.ColName, name))
	}
	if surname = strings.TrimSpace(surname); surname != "" {
		p = p.And(database.ContainsFold(userrepo.ColSurname, surname))
	}
	res, err := s.repo.Search(ctx, p, page, size)
	if err != nil {
		return database.Page[entity.User]{}, fmt.Errorf("search users: %w", err)
	}
	return res, nil
}

// Update overwrites name, surname, email and birth date and refreshes the cache entry.
func (s *UserService) Update(ctx context.Context, id string, in *entity.User) (*View, error) {
	u := *in
	u.ID = id
	u.UpdatedAt = s.now()
	var stored bool
	var putErr error
	res, err := s.cache.Refresh(cache.Users, id, func() (any, error) {
		out, err := s.repo.Update(ctx, &u)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("update user: %w", err)
		}
		stored = true
		return s.withCards(ctx, out)
	}, func(v any) {
		putErr = s.cache.Put(ctx, cache.Users, id, v)
	})
	if err != nil {
		if stored {
			// the row changed, so the cached copy must not survive
			return nil, errors.Join(err, s.evict(ctx, id))
		}
		return nil, err
	}
	if putErr != nil {
		s.logger.Warnw("refresh cached user failed, evicting", "id", id, "err", putErr)
		if err := s.evict(ctx, id); err != nil {
			return nil, err
		}
	}
	return res.(*View).clone(), nil
}

func (s *UserService) Activate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, true)
}

func (s *UserService) Deactivate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, false)
}

func (s *UserService) setActive(ctx context.Context, id string, active bool) error {
	if err := s.repo.SetActive(ctx, id, active, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("set user active: %w", err)
	}
	return s.evict(ctx, id)
}

// Delete removes the user and, by cascade, its cards. Deleting an unknown
// user succeeds. Cached entries of the removed cards are evicted too.
func (s *UserService) Delete(ctx context.Context, id string) error {
	cards, err := s.cards.ListByUser(ctx, id)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	errs := []error{s.evict(ctx, id)}
	for _, c := range cards {
		if err := s.cache.Evict(ctx, cache.Cards, c.ID); err != nil {
			errs = append(errs, fmt.Errorf("evict card %s: %w", c.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *UserService) evict(ctx context.Context, id string) error {
	if err := s.cache.Evict(ctx, cache.Users, id); err != nil {
		return fmt.Errorf("evict user %s: %w", id, err)
	}
	return nil
}

// populate returns a store callback caching a *View. A failure only costs a
// later miss, so it is logged and dropped.
func (s *UserService) populate(ctx context.Context) func(any) {
	return func(x any) {
		v := x.(*View)
		if err := s.cache.Put(ctx, cache.Users, v.ID, v); err != nil {
			s.logger.Warnw("cache user failed", "id", v.ID, "err", err)
		}
	}
}
