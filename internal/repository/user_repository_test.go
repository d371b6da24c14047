package repository_test

import (
	"cardofun_backend/internal/model"
	"cardofun_backend/internal/repository"
	"cardofun_backend/internal/testutil"
	"cardofun_backend/internal/util"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userIDs(users []model.User) []uint {
	out := make([]uint, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func listFriends(t *testing.T, repo *repository.UserRepository, f repository.FriendFilter) []uint {
	t.Helper()
	q, err := repo.Friends(f)
	require.NoError(t, err)
	got, err := q.All(context.Background())
	require.NoError(t, err)
	return userIDs(got)
}

func listUsers(t *testing.T, repo *repository.UserRepository, f repository.UserFilter) []uint {
	t.Helper()
	q, err := repo.Users(f)
	require.NoError(t, err)
	got, err := q.All(context.Background())
	require.NoError(t, err)
	return userIDs(got)
}

func TestFriendsOwnership(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewUserRepository(db)
	users := testutil.CreateUsers(t, db, 4)
	me, sentToMe, sentByMe, stranger := users[0], users[1], users[2], users[3]

	testutil.CreateFriendRequest(t, db, sentToMe.ID, me.ID, model.FriendshipAccepted)
	testutil.CreateFriendRequest(t, db, me.ID, sentByMe.ID, model.FriendshipAccepted)
	testutil.CreateFriendRequest(t, db, stranger.ID, sentByMe.ID, model.FriendshipAccepted)

	accepted := []model.FriendshipStatus{model.FriendshipAccepted}
	base := repository.UserFilter{RequesterID: me.ID, Now: testutil.Epoch}

	assert.Equal(t, []uint{sentToMe.ID, sentByMe.ID},
		listFriends(t, repo, repository.FriendFilter{UserFilter: base, Statuses: accepted}))
	assert.Equal(t, []uint{sentByMe.ID},
		listFriends(t, repo, repository.FriendFilter{UserFilter: base, Statuses: accepted, Owned: boolPtr(true)}))
	assert.Equal(t, []uint{sentToMe.ID},
		listFriends(t, repo, repository.FriendFilter{UserFilter: base, Statuses: accepted, Owned: boolPtr(false)}))
}

func TestFriendsStatusSet(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewUserRepository(db)
	users := testutil.CreateUsers(t, db, 4)
	me := users[0]

	testutil.CreateFriendRequest(t, db, me.ID, users[1].ID, model.FriendshipPending)
	testutil.CreateFriendRequest(t, db, users[2].ID, me.ID, model.FriendshipBlocked)
	testutil.CreateFriendRequest(t, db, me.ID, users[3].ID, model.FriendshipAccepted)

	base := repository.UserFilter{RequesterID: me.ID, Now: testutil.Epoch}
	assert.Equal(t, []uint{users[1].ID, users[2].ID}, listFriends(t, repo, repository.FriendFilter{
		UserFilter: base,
		Statuses:   []model.FriendshipStatus{model.FriendshipPending, model.FriendshipBlocked},
	}))
	assert.Empty(t, listFriends(t, repo, repository.FriendFilter{UserFilter: base}))
}

func TestFriendsExcludeSelf(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewUserRepository(db)
	me := testutil.CreateUser(t, db, "me")
	testutil.CreateFriendRequest(t, db, me.ID, me.ID, model.FriendshipAccepted)

	assert.Empty(t, listFriends(t, repo, repository.FriendFilter{
		UserFilter: repository.UserFilter{RequesterID: me.ID},
		Statuses:   []model.FriendshipStatus{model.FriendshipAccepted},
	}))
}

func TestUsersUnsetFiltersPassEveryone(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewUserRepository(db)
	users := testutil.CreateUsers(t, db, 4)

	got := listUsers(t, repo, repository.UserFilter{RequesterID: users[0].ID, Now: testutil.Epoch})
	assert.Equal(t, []uint{users[1].ID, users[2].ID, users[3].ID}, got)
}

func TestUsersDemographicFilters(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewUserRepository(db)

	moscow := testutil.CreateCity(t, db, "Moscow", "RU")
	kazan := testutil.CreateCity(t, db, "Kazan", "RU")
	berlin := testutil.CreateCity(t, db, "Berlin", "DE")

	me := testutil.CreateUser(t, db, "me")
	// Epoch is 2024-06-15
	anna := testutil.CreateUser(t, db, "anna", testutil.WithSex(model.SexFemale),
		testutil.WithBirthDate(2000, time.June, 15), testutil.WithCity(moscow.ID),
		testutil.WithLastActive(testutil.Epoch))
	boris := testutil.CreateUser(t, db, "boris", testutil.WithSex(model.SexMale),
		testutil.WithBirthDate(2000, time.June, 16), testutil.WithCity(kazan.ID),
		testutil.WithLastActive(testutil.Epoch.Add(-time.Minute)))
	clara := testutil.CreateUser(t, db, "clara", testutil.WithSex(model.SexFemale),
		testutil.WithBirthDate(1980, time.January, 1), testutil.WithCity(berlin.ID),
		testutil.WithLastActive(testutil.Epoch.Add(-2*time.Minute)))

	testutil.AddLanguage(t, db, anna.ID, "en", true)
	testutil.AddLanguage(t, db, boris.ID, "en", false)
	testutil.AddLanguage(t, db, clara.ID, "de", false)

	female := model.SexFemale
	base := repository.UserFilter{RequesterID: me.ID, Now: testutil.Epoch}

	f := base
	f.Sex = &female
	assert.Equal(t, []uint{anna.ID, clara.ID}, listUsers(t, repo, f))

	// anna turns 24 today, boris is still 23
	f = base
	f.AgeMin = intPtr(24)
	assert.Equal(t, []uint{anna.ID, clara.ID}, listUsers(t, repo, f))

	f = base
	f.AgeMax = intPtr(23)
	assert.Equal(t, []uint{boris.ID}, listUsers(t, repo, f))

	f = base
	f.AgeMin, f.AgeMax = intPtr(24), intPtr(24)
	assert.Equal(t, []uint{anna.ID}, listUsers(t, repo, f))

	f = base
	f.CityID = &kazan.ID
	assert.Equal(t, []uint{boris.ID}, listUsers(t, repo, f))

	f = base
	f.CountryIsoCode = "RU"
	assert.Equal(t, []uint{anna.ID, boris.ID}, listUsers(t, repo, f))

	f = base
	f.LanguageLearningCode = "en"
	assert.Equal(t, []uint{anna.ID}, listUsers(t, repo, f))

	f = base
	f.LanguageSpeakingCode = "en"
	assert.Equal(t, []uint{boris.ID}, listUsers(t, repo, f))

	f = base
	f.Sex = &female
	f.CountryIsoCode = "DE"
	f.LanguageSpeakingCode = "de"
	assert.Equal(t, []uint{clara.ID}, listUsers(t, repo, f))
}

func TestFriendsCombineWithDemographics(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewUserRepository(db)
	me := testutil.CreateUser(t, db, "me")
	anna := testutil.CreateUser(t, db, "anna", testutil.WithSex(model.SexFemale))
	boris := testutil.CreateUser(t, db, "boris", testutil.WithSex(model.SexMale))
	testutil.CreateFriendRequest(t, db, me.ID, anna.ID, model.FriendshipAccepted)
	testutil.CreateFriendRequest(t, db, boris.ID, me.ID, model.FriendshipAccepted)

	male := model.SexMale
	got := listFriends(t, repo, repository.FriendFilter{
		UserFilter: repository.UserFilter{RequesterID: me.ID, Sex: &male},
		Statuses:   []model.FriendshipStatus{model.FriendshipAccepted},
	})
	assert.Equal(t, []uint{boris.ID}, got)
}

func TestGetFriendsPageLoadsListShape(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := repository.NewUserRepository(db)
	city := testutil.CreateCity(t, db, "Moscow", "RU")
	me := testutil.CreateUser(t, db, "me")
	anna := testutil.CreateUser(t, db, "anna", testutil.WithCity(city.ID))
	testutil.CreateMainPhoto(t, db, anna.ID, "/p/anna.jpg")
	testutil.CreateFriendRequest(t, db, me.ID, anna.ID, model.FriendshipAccepted)

	page, err := repo.GetFriendsPage(ctx, repository.FriendFilter{
		UserFilter: repository.UserFilter{RequesterID: me.ID},
		Statuses:   []model.FriendshipStatus{model.FriendshipAccepted},
	}, util.NewPageParams(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	got := page.Items[0]
	assert.Equal(t, "/p/anna.jpg", got.MainPhotoURL())
	require.NotNil(t, got.City)
	require.NotNil(t, got.City.Country)
	assert.Equal(t, "RU", got.City.Country.IsoCode)
}

func TestFindByIDAndBriefs(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := repository.NewUserRepository(db)
	anna := testutil.CreateUser(t, db, "anna")
	testutil.AddLanguage(t, db, anna.ID, "en", true)

	u, err := repo.FindByID(ctx, anna.ID)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Len(t, u.Languages, 1)
	require.NotNil(t, u.Languages[0].Language)

	u, err = repo.FindByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, u)

	briefs, err := repo.FindBriefs(ctx, []uint{anna.ID, 999})
	require.NoError(t, err)
	assert.Len(t, briefs, 1)
	assert.Equal(t, "anna", briefs[anna.ID].Name)
}
