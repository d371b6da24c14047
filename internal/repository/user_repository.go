package repository

import (
	"cardofun_backend/internal/model"
	"cardofun_backend/internal/query"
	"cardofun_backend/internal/util"
	"context"
	"time"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

// UserFilter narrows user listings. Unset fields do not filter.
type UserFilter struct {
	RequesterID          uint
	Sex                  *model.Sex
	AgeMin               *int
	AgeMax               *int
	CityID               *uint
	CountryIsoCode       string
	LanguageLearningCode string
	LanguageSpeakingCode string
	// Now anchors age filters; zero means time.Now.
	Now time.Time
}

// FriendFilter selects users holding a friend request with the requester.
// Owned nil accepts either direction, false only requests the other user sent,
// true only requests the requester sent.
type FriendFilter struct {
	UserFilter
	Statuses []model.FriendshipStatus
	Owned    *bool
}

func profileShape(s *query.Shaping) {
	s.Include("City.Country").Include("Photos").Include("Languages.Language")
}

func listShape(s *query.Shaping) {
	s.Include("City.Country").
		Include("Photos", "is_main = ?", true).
		OrderByDesc("last_active").
		OrderByDesc("id")
}

func (f UserFilter) predicates() []query.Predicate {
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	return []query.Predicate{
		query.Ne("id", f.RequesterID),
		query.Optional(f.Sex, func(s model.Sex) query.Predicate {
			return query.Eq("sex", string(s))
		}),
		// born on or before today minus min years
		query.Optional(f.AgeMin, func(years int) query.Predicate {
			return query.Lte("birth_date", today.AddDate(-years, 0, 0))
		}),
		// born after today minus max+1 years
		query.Optional(f.AgeMax, func(years int) query.Predicate {
			return query.Gt("birth_date", today.AddDate(-(years+1), 0, 0))
		}),
		query.Optional(f.CityID, func(id uint) query.Predicate {
			return query.Eq("city_id", id)
		}),
		query.When(f.CityID == nil && f.CountryIsoCode != "",
			query.Exists(model.City{},
				query.EqOuter("id", "city_id"),
				query.Eq("country_iso_code", f.CountryIsoCode))),
		query.When(f.LanguageLearningCode != "", languagePredicate(f.LanguageLearningCode, true)),
		query.When(f.LanguageSpeakingCode != "", languagePredicate(f.LanguageSpeakingCode, false)),
	}
}

func languagePredicate(code string, learning bool) query.Predicate {
	return query.Exists(model.UserLanguage{},
		query.EqOuter("user_id", "id"),
		query.Eq("language_code", code),
		query.Eq("learning", learning))
}

func statusValues(statuses []model.FriendshipStatus) []string {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return values
}

// friendPredicate is one EXISTS check per allowed direction.
func (f FriendFilter) friendPredicate() query.Predicate {
	statuses := statusValues(f.Statuses)
	sentByCandidate := query.Exists(model.FriendRequest{},
		query.EqOuter("from_user_id", "id"),
		query.Eq("to_user_id", f.RequesterID),
		query.In("status", statuses))
	sentByRequester := query.Exists(model.FriendRequest{},
		query.Eq("from_user_id", f.RequesterID),
		query.EqOuter("to_user_id", "id"),
		query.In("status", statuses))

	switch {
	case f.Owned == nil:
		return query.Or(sentByCandidate, sentByRequester)
	case *f.Owned:
		return sentByRequester
	default:
		return sentByCandidate
	}
}

// Users is the discovery listing, newest activity first.
func (r *UserRepository) Users(filter UserFilter) (*query.Query[model.User], error) {
	return query.From[model.User](r.DB, listShape, filter.predicates()...)
}

// Friends is Users narrowed to the requester's friend requests.
func (r *UserRepository) Friends(filter FriendFilter) (*query.Query[model.User], error) {
	q, err := r.Users(filter.UserFilter)
	if err != nil {
		return nil, err
	}
	return q.Where(filter.friendPredicate())
}

func (r *UserRepository) GetPage(ctx context.Context, filter UserFilter, page util.PageParams) (*util.PagedResult[model.User], error) {
	q, err := r.Users(filter)
	if err != nil {
		return nil, err
	}
	return q.Page(ctx, page)
}

func (r *UserRepository) GetFriendsPage(ctx context.Context, filter FriendFilter, page util.PageParams) (*util.PagedResult[model.User], error) {
	q, err := r.Friends(filter)
	if err != nil {
		return nil, err
	}
	return q.Page(ctx, page)
}

// FindByID returns the full profile, or nil when the user does not exist.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	q, err := query.From[model.User](r.DB, profileShape)
	if err != nil {
		return nil, err
	}
	return q.Get(ctx, id)
}

// FindBriefs loads users with their main photo only, keyed by id.
func (r *UserRepository) FindBriefs(ctx context.Context, ids []uint) (map[uint]*model.User, error) {
	users := make(map[uint]*model.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	q, err := query.From[model.User](r.DB, func(s *query.Shaping) {
		s.Include("Photos", "is_main = ?", true)
	}, query.In("id", ids))
	if err != nil {
		return nil, err
	}
	found, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range found {
		users[found[i].ID] = &found[i]
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if user.LastActive.IsZero() {
		user.LastActive = time.Now()
	}
	return query.Add(ctx, r.DB, user)
}

// UpdateLastSeen stamps LastActive for the activity middleware.
func (r *UserRepository) UpdateLastSeen(userID uint) error {
	_, err := query.Update[model.User](context.Background(), r.DB,
		map[string]interface{}{"last_active": time.Now()},
		query.Eq("id", userID))
	return err
}
