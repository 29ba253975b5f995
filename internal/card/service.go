package card

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
	"github.com/ovaphlow/pitchfork/service-user-go/internal/card/entity"
	cardrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/card/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

// MaxPerUser is the number of cards one user may hold.
const MaxPerUser = 5

var (
	ErrNotFound      = errors.New("card not found")
	ErrOwnerNotFound = errors.New("card owner not found")
	ErrLimitExceeded = fmt.Errorf("a user may hold at most %d cards", MaxPerUser)
)

// Repository is the storage the service needs. *cardrepo.CardRepo satisfies it.
type Repository interface {
	CreateLimited(ctx context.Context, c *entity.Card, limit int) error
	GetByID(ctx context.Context, id string) (*entity.Card, error)
	ListByUser(ctx context.Context, userID string) ([]entity.Card, error)
	Update(ctx context.Context, c *entity.Card) (*entity.Card, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) (string, error)
	Delete(ctx context.Context, id string) (string, error)
	Search(ctx context.Context, p database.Predicate, page, size int) (database.Page[entity.Card], error)
}

// CardService owns the card lifecycle. Every mutation evicts the card entry
// and the owner's user entry, since a cached user embeds its cards.
type CardService struct {
	repo   Repository
	cache  *cache.Coherent
	now    func() time.Time
	logger *zap.SugaredLogger
}

// NewCardService wires a service. c must be the Coherent the user service
// reads through, so that owner evictions reach its in-flight loads.
func NewCardService(db *sqlx.DB, c *cache.Coherent, r Repository) *CardService {
	if r == nil {
		r = cardrepo.NewCardRepo(db)
	}
	return &CardService{
		repo:   r,
		cache:  c,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		logger: zap.NewNop().Sugar(),
	}
}

// WithLogger sets the logger used for non-fatal cache population failures.
func (s *CardService) WithLogger(l *zap.SugaredLogger) *CardService {
	if l != nil {
		s.logger = l
	}
	return s
}

// Create admits a new active card for in.UserID. The owner check, the count
// and the insert run in one storage transaction.
func (s *CardService) Create(ctx context.Context, in *entity.Card) (*entity.Card, error) {
	c := *in
	c.ID = utilities.NewEntityID()
	now := s.now()
	c.Active = true
	c.CreatedAt, c.UpdatedAt = now, now

	res, err := s.cache.Refresh(cache.Cards, c.ID, func() (any, error) {
		if err := s.repo.CreateLimited(ctx, &c, MaxPerUser); err != nil {
			switch {
			case errors.Is(err, cardrepo.ErrOwnerMissing):
				return nil, ErrOwnerNotFound
			case errors.Is(err, cardrepo.ErrLimitReached):
				return nil, ErrLimitExceeded
			}
			return nil, fmt.Errorf("create card: %w", err)
		}
		// before the card is cached, so no reader can pair it with a stale owner
		if err := s.evictUser(ctx, c.UserID); err != nil {
			return nil, err
		}
		return c, nil
	}, s.populate(ctx))
	if err != nil {
		return nil, err
	}
	out := res.(entity.Card)
	return &out, nil
}

// GetByID reads through the cache, sharing concurrent loads of one id.
// A load overlapped by an eviction of id is not cached.
func (s *CardService) GetByID(ctx context.Context, id string) (*entity.Card, error) {
	var cached entity.Card
	hit, err := s.cache.Get(ctx, cache.Cards, id, &cached)
	if err != nil {
		return nil, fmt.Errorf("cache get card: %w", err)
	}
	if hit {
		return &cached, nil
	}
	res, err := s.cache.Load(cache.Cards, id, func() (any, error) {
		c, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("get card: %w", err)
		}
		return *c, nil
	}, s.populate(ctx))
	if err != nil {
		return nil, err
	}
	c := res.(entity.Card)
	return &c, nil
}

// Search pages through cards whose number and holder contain the non-blank
// filters, ignoring case.
func (s *CardService) Search(ctx context.Context, number, holder string, page, size int) (database.Page[entity.Card], error) {
	var p database.Predicate
	if number = strings.TrimSpace(number); number != "" {
		p = p.And(database.ContainsFold(cardrepo.ColNumber, number))
	}
	if holder = strings.TrimSpace(holder); holder != "" {
		p = p.And(database.ContainsFold(cardrepo.ColHolder, holder))
	}
	res, err := s.repo.Search(ctx, p, page, size)
	if err != nil {
		return database.Page[entity.Card]{}, fmt.Errorf("search cards: %w", err)
	}
	return res, nil
}

// ListByUser returns all cards of one user straight from storage.
// An unknown user simply has no cards.
func (s *CardService) ListByUser(ctx context.Context, userID string) ([]entity.Card, error) {
	cards, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

// Update overwrites number, holder and expiration date.
func (s *CardService) Update(ctx context.Context, id string, in *entity.Card) (*entity.Card, error) {
	c := *in
	c.ID = id
	c.UpdatedAt = s.now()
	stored, err := s.repo.Update(ctx, &c)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update card: %w", err)
	}
	if err := s.evictBoth(ctx, id, stored.UserID); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *CardService) Activate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, true)
}

func (s *CardService) Deactivate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, false)
}

func (s *CardService) setActive(ctx context.Context, id string, active bool) error {
	owner, err := s.repo.SetActive(ctx, id, active, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("set card active: %w", err)
	}
	return s.evictBoth(ctx, id, owner)
}

// Delete removes a card and returns the id of its former owner.
func (s *CardService) Delete(ctx context.Context, id string) (string, error) {
	owner, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("delete card: %w", err)
	}
	if err := s.evictBoth(ctx, id, owner); err != nil {
		return "", err
	}
	return owner, nil
}

// evictBoth always attempts both evictions and reports every failure.
func (s *CardService) evictBoth(ctx context.Context, id, owner string) error {
	var errs []error
	if err := s.cache.Evict(ctx, cache.Cards, id); err != nil {
		errs = append(errs, fmt.Errorf("evict card %s: %w", id, err))
	}
	errs = append(errs, s.evictUser(ctx, owner))
	return errors.Join(errs...)
}

func (s *CardService) evictUser(ctx context.Context, owner string) error {
	if err := s.cache.Evict(ctx, cache.Users, owner); err != nil {
		return fmt.Errorf("evict user %s: %w", owner, err)
	}
	return nil
}

func (s *CardService) populate(ctx context.Context) func(any) {
	return func(x any) {
		c := x.(entity.Card)
		if err := s.cache.Put(ctx, cache.Cards, c.ID, c); err != nil {
			s.logger.Warnw("cache card failed", "id", c.ID, "err", err)
		}
	}
}
