package backend

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectkids/internal/model"
)

const testPassword = "let-me-in"

func openTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := OpenLocal(context.Background(), LocalOptions{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		Secret:       []byte("test-secret"),
		SeedPassword: testPassword,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func login(t *testing.T, s *LocalStore, email string) string {
	t.Helper()
	token, err := s.Login(context.Background(), email, testPassword)
	require.NoError(t, err)
	return token
}

func TestLocalStoreLoginAndMe(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	token := login(t, s, "organizer@connectkids.org")
	user, err := s.Me(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "organizer@connectkids.org", user.Email)
	assert.Equal(t, model.RoleOrganizer, user.Role)

	newcomer, err := s.Me(ctx, login(t, s, "new@connectkids.org"))
	require.NoError(t, err)
	assert.Empty(t, newcomer.Role)
}

func TestLocalStoreRejectsBadCredentials(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Login(ctx, "organizer@connectkids.org", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Login(ctx, "nobody@connectkids.org", testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLocalStoreMeRejectsBadTokens(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Me(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = s.Me(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	token := login(t, s, "parent@connectkids.org")
	s.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err = s.Me(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated, "expired")
}

func TestLocalStoreUpdateMe(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	token := login(t, s, "new@connectkids.org")

	user, err := s.UpdateMe(ctx, token, model.ProfileUpdate{Role: model.RoleOrganizer})
	require.NoError(t, err)
	assert.Equal(t, model.RoleOrganizer, user.Role)

	_, err = s.UpdateMe(ctx, token, model.ProfileUpdate{Role: "admin"})
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.Status)
}

func TestLocalStoreUpdateMeKeepsExistingRole(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	token := login(t, s, "parent@connectkids.org")

	_, err := s.UpdateMe(ctx, token, model.ProfileUpdate{Role: model.RoleOrganizer})
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusConflict, serr.Status)

	user, err := s.Me(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleParent, user.Role)

	_, err = s.CreateOpportunity(ctx, token, model.NewDraft())
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusForbidden, serr.Status)
}

func TestLocalStoreCreateAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	before, err := s.ListOpportunities(ctx, "")
	require.NoError(t, err)

	d := model.Draft{
		Title:        "Intro to Python Programming",
		AgeRange:     model.Age9to11,
		Interest:     model.InterestCoding,
		Description:  "Learn basics of Python.",
		Link:         "https://example.org",
		Organization: "Example Org",
	}
	rec, err := s.CreateOpportunity(ctx, login(t, s, "organizer@connectkids.org"), d)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, d, rec.Draft)
	assert.Equal(t, "organizer@connectkids.org", rec.CreatedBy)

	after, err := s.ListOpportunities(ctx, "")
	require.NoError(t, err)
	require.Len(t, after, len(before)+1)

	var found bool
	for _, o := range after {
		if o.ID == rec.ID {
			found = true
			assert.Equal(t, d, o.Draft)
		}
	}
	assert.True(t, found)
}

func TestLocalStoreCreateRequiresOrganizer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	d := model.NewDraft()
	d.Title, d.Description, d.Link = "t", "d", "l"

	_, err := s.CreateOpportunity(ctx, "", d)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = s.CreateOpportunity(ctx, login(t, s, "parent@connectkids.org"), d)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusForbidden, serr.Status)
}

func TestLocalStoreLoginURL(t *testing.T) {
	s := openTestStore(t)
	assert.Equal(t, "/login?from_url=%2FCreateOpportunity", s.LoginURL("/CreateOpportunity"))
}
