package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/finderhq/influencer-finder/internal/auth"
	"github.com/finderhq/influencer-finder/internal/blob"
	"github.com/finderhq/influencer-finder/internal/influencer"
	"github.com/finderhq/influencer-finder/internal/keystore"
	"github.com/finderhq/influencer-finder/internal/metrics"
	"github.com/finderhq/influencer-finder/internal/search"
	"github.com/finderhq/influencer-finder/internal/store/postgres"
	"github.com/finderhq/influencer-finder/internal/syncjob"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

var testSecret = []byte("api-test-secret")

type fakeSearcher struct {
	searchResult search.Result
	allResult    search.AggregateResult
	cachedResult search.CachedResult
	gotFilter    influencer.Filter
	gotCity      string
	gotPlatform  string
}

func (f *fakeSearcher) Search(_ context.Context, filter influencer.Filter) search.Result {
	f.gotFilter = filter
	return f.searchResult
}

func (f *fakeSearcher) SearchAll(_ context.Context, filter influencer.Filter) search.AggregateResult {
	f.gotFilter = filter
	return f.allResult
}

func (f *fakeSearcher) Cached(_ context.Context, city, platform string) search.CachedResult {
	f.gotCity, f.gotPlatform = city, platform
	return f.cachedResult
}

type fakeSyncer struct {
	job Job
	err error
}

// Job aliases keep the fake declarations short.
type Job = syncjob.Job

func (f *fakeSyncer) Submit(_ context.Context, params syncjob.Parameters) (Job, error) {
	if f.err != nil {
		return Job{}, f.err
	}
	job := f.job
	job.Parameters = params
	return job, nil
}

type fakeJobReader struct {
	jobs map[string]Job
}

func (f *fakeJobReader) Get(_ context.Context, jobID string) (Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return Job{}, syncjob.ErrJobNotFound
	}
	return job, nil
}

type fakeUsers struct {
	byEmail map[string]postgres.User
	created []postgres.User
	err     error
}

func (f *fakeUsers) Create(_ context.Context, email, passwordHash, role string) (postgres.User, error) {
	if f.err != nil {
		return postgres.User{}, f.err
	}
	user := postgres.User{ID: "u-new", Email: email, PasswordHash: passwordHash, Role: role, Status: postgres.UserStatusActive}
	f.created = append(f.created, user)
	return user, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (postgres.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return postgres.User{}, postgres.ErrNotFound
	}
	return user, nil
}

func (f *fakeUsers) List(_ context.Context) ([]postgres.User, error) { return nil, f.err }

func (f *fakeUsers) UpdateStatus(_ context.Context, _, _ string) error { return f.err }

func (f *fakeUsers) UpdateRole(_ context.Context, _, _ string) error { return f.err }

func (f *fakeUsers) Delete(_ context.Context, _ string) error { return f.err }

type fakeCities struct {
	cities []postgres.City
	err    error
}

func (f *fakeCities) List(_ context.Context) ([]postgres.City, error) { return f.cities, f.err }

func (f *fakeCities) Create(_ context.Context, name string) (postgres.City, error) {
	if f.err != nil {
		return postgres.City{}, f.err
	}
	return postgres.City{ID: "c-new", Name: name}, nil
}

func (f *fakeCities) Delete(_ context.Context, _ string) error { return f.err }

type fakeSubscriptions struct {
	err error
}

func (f *fakeSubscriptions) List(_ context.Context) ([]postgres.Subscription, error) {
	return nil, f.err
}

func (f *fakeSubscriptions) Create(_ context.Context, userID, plan string, expiresAt *time.Time) (postgres.Subscription, error) {
	if f.err != nil {
		return postgres.Subscription{}, f.err
	}
	return postgres.Subscription{ID: "s-new", UserID: userID, Plan: plan, ExpiresAt: expiresAt}, nil
}

func (f *fakeSubscriptions) UpdateStatus(_ context.Context, _, _ string) error { return f.err }

func (f *fakeSubscriptions) Delete(_ context.Context, _ string) error { return f.err }

type fakeKeys struct {
	keys []keystore.APIKey
	err  error
}

func (f *fakeKeys) List(_ context.Context) ([]keystore.APIKey, error) { return f.keys, f.err }

func (f *fakeKeys) Create(_ context.Context, serviceName, keyValue string) (keystore.APIKey, error) {
	if f.err != nil {
		return keystore.APIKey{}, f.err
	}
	return keystore.APIKey{ID: "k-new", ServiceName: serviceName, KeyValue: keyValue, Status: keystore.StatusActive}, nil
}

func (f *fakeKeys) UpdateStatus(_ context.Context, _, _ string) error { return f.err }

func (f *fakeKeys) Delete(_ context.Context, _ string) error { return f.err }

type serverFixture struct {
	server   *Server
	searcher *fakeSearcher
	users    *fakeUsers
	exports  *blob.MemoryProvider
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)

	searcher := &fakeSearcher{}
	users := &fakeUsers{byEmail: map[string]postgres.User{
		"admin@example.com": {ID: "u-admin", Email: "admin@example.com", PasswordHash: hash, Role: postgres.RoleAdmin, Status: postgres.UserStatusActive},
		"user@example.com":  {ID: "u-user", Email: "user@example.com", PasswordHash: hash, Role: postgres.RoleUser, Status: postgres.UserStatusActive},
		"off@example.com":   {ID: "u-off", Email: "off@example.com", PasswordHash: hash, Role: postgres.RoleUser, Status: postgres.UserStatusDisabled},
	}}
	exports := blob.NewMemoryProvider()

	server := NewServer(Deps{
		Searcher:      searcher,
		Syncer:        &fakeSyncer{job: Job{ID: "job-1", Status: syncjob.StatusQueued}},
		Jobs:          &fakeJobReader{jobs: map[string]Job{"job-1": {ID: "job-1", Status: syncjob.StatusRunning}}},
		Users:         users,
		Cities:        &fakeCities{cities: []postgres.City{{ID: "c-1", Name: "Austin"}}},
		Subscriptions: &fakeSubscriptions{},
		Keys:          &fakeKeys{keys: []keystore.APIKey{{ID: "k-1", ServiceName: "ylytic", KeyValue: "secret", Status: keystore.StatusActive}}},
		Exports:       exports,
		JWTSecret:     testSecret,
		TokenTTL:      time.Minute,
		Timeout:       5 * time.Second,
		Logger:        zap.NewNop(),
	})
	return &serverFixture{server: server, searcher: searcher, users: users, exports: exports}
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, role, testSecret, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(f *serverFixture, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestLogin_Succeeds(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	rec := doRequest(f, http.MethodPost, "/v1/auth/login", "",
		[]byte(`{"email":"admin@example.com","password":"hunter2"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	require.Equal(t, postgres.RoleAdmin, resp["role"])

	claims, err := auth.ParseToken(resp["token"], testSecret)
	require.NoError(t, err)
	require.Equal(t, "u-admin", claims.UserID)
}

func TestLogin_WrongPassword(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	rec := doRequest(f, http.MethodPost, "/v1/auth/login", "",
		[]byte(`{"email":"admin@example.com","password":"wrong"}`))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_DisabledAccount(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	rec := doRequest(f, http.MethodPost, "/v1/auth/login", "",
		[]byte(`{"email":"off@example.com","password":"hunter2"}`))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSearch_RequiresAuth(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	rec := doRequest(f, http.MethodGet, "/v1/search?city=Austin", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSearch_PassesFilter(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	f.searcher.searchResult = search.Result{
		Success:     true,
		Results:     []influencer.Influencer{{ID: "a", Handle: "a"}},
		TotalPages:  3,
		CurrentPage: 2,
	}

	rec := doRequest(f, http.MethodGet,
		"/v1/search?city=Austin&platform=instagram&category=Food&page=2",
		bearer(t, "u-user", postgres.RoleUser), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Austin", f.searcher.gotFilter.City)
	require.Equal(t, "instagram", f.searcher.gotFilter.Platform)
	require.Equal(t, "Food", f.searcher.gotFilter.Category)
	require.Equal(t, 2, f.searcher.gotFilter.Page)

	var resp search.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
}

func TestSearch_FailureMapsToBadGateway(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	f.searcher.searchResult = search.Result{Success: false, Message: "Failed to fetch influencers."}

	rec := doRequest(f, http.MethodGet, "/v1/search?city=Austin",
		bearer(t, "u-user", postgres.RoleUser), nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSearchAll(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	f.searcher.allResult = search.AggregateResult{Success: true, Pages: 2}

	rec := doRequest(f, http.MethodGet, "/v1/search/all?city=Austin&platform=instagram",
		bearer(t, "u-user", postgres.RoleUser), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp search.AggregateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Pages)
}

func TestCached(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	f.searcher.cachedResult = search.CachedResult{
		Success: true,
		Results: []influencer.Influencer{{ID: "a", Handle: "a"}},
	}

	rec := doRequest(f, http.MethodGet, "/v1/influencers/cached?city=Austin&platform=instagram",
		bearer(t, "u-user", postgres.RoleUser), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Austin", f.searcher.gotCity)
	require.Equal(t, "instagram", f.searcher.gotPlatform)
}

func TestExport_ReturnsCSVAndArchives(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	f.searcher.cachedResult = search.CachedResult{
		Success: true,
		Results: []influencer.Influencer{{ID: "a", Handle: "pchef", Platform: "Instagram"}},
	}

	rec := doRequest(f, http.MethodGet,
		"/v1/influencers/export?city=Austin&platform=instagram&archive=true",
		bearer(t, "u-user", postgres.RoleUser), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "pchef")
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	rec := doRequest(f, http.MethodGet, "/v1/admin/users/",
		bearer(t, "u-user", postgres.RoleUser), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdmin_CreateUser(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	rec := doRequest(f, http.MethodPost, "/v1/admin/users/",
		bearer(t, "u-admin", postgres.RoleAdmin),
		[]byte(`{"email":"new@example.com","password":"s3cret"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.users.created, 1)
	require.Equal(t, postgres.RoleUser, f.users.created[0].Role, "role defaults to user")
	require.NotEqual(t, "s3cret", f.users.created[0].PasswordHash, "password is hashed before storage")
	require.NotContains(t, rec.Body.String(), "s3cret")
}

func TestAdmin_ListKeysRedactsValues(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	rec := doRequest(f, http.MethodGet, "/v1/admin/api-keys/",
		bearer(t, "u-admin", postgres.RoleAdmin), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret")
	require.Contains(t, rec.Body.String(), "fingerprint")
}

func TestAdmin_CreateCityConflict(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	server := NewServer(Deps{
		Searcher:      f.searcher,
		Syncer:        &fakeSyncer{},
		Jobs:          &fakeJobReader{},
		Users:         f.users,
		Cities:        &fakeCities{err: postgres.ErrDuplicate},
		Subscriptions: &fakeSubscriptions{},
		Keys:          &fakeKeys{},
		Exports:       blob.NewMemoryProvider(),
		JWTSecret:     testSecret,
		TokenTTL:      time.Minute,
		Logger:        zap.NewNop(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/cities/", bytes.NewReader([]byte(`{"name":"Austin"}`)))
	req.Header.Set("Authorization", bearer(t, "u-admin", postgres.RoleAdmin))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSync_SubmitAndStatus(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	rec := doRequest(f, http.MethodPost, "/v1/admin/sync/",
		bearer(t, "u-admin", postgres.RoleAdmin),
		[]byte(`{"city":"Austin","platform":"instagram"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "job-1")

	rec = doRequest(f, http.MethodGet, "/v1/admin/sync/job-1",
		bearer(t, "u-admin", postgres.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "running")

	rec = doRequest(f, http.MethodGet, "/v1/admin/sync/missing",
		bearer(t, "u-admin", postgres.RoleAdmin), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSync_SubmitRejected(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	server := NewServer(Deps{
		Searcher:      f.searcher,
		Syncer:        &fakeSyncer{err: errors.New("sync requires a concrete city")},
		Jobs:          &fakeJobReader{},
		Users:         f.users,
		Cities:        &fakeCities{},
		Subscriptions: &fakeSubscriptions{},
		Keys:          &fakeKeys{},
		Exports:       blob.NewMemoryProvider(),
		JWTSecret:     testSecret,
		TokenTTL:      time.Minute,
		Logger:        zap.NewNop(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/sync/",
		bytes.NewReader([]byte(`{"city":"Any City","platform":"instagram"}`)))
	req.Header.Set("Authorization", bearer(t, "u-admin", postgres.RoleAdmin))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	rec := doRequest(f, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(f, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteJSON_EncodeFailureUsesGivenLogger(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	rr := httptest.NewRecorder()

	writeJSON(zap.New(core), rr, http.StatusOK, math.Inf(1))

	require.Equal(t, 1, logs.FilterMessage("write JSON failed").Len())
}
