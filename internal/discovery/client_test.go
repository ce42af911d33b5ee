package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finderhq/influencer-finder/internal/influencer"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := New(Config{
		BaseURL: srv.URL + "/discovery",
		Host:    "discovery.test",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
	return client, srv
}

func TestFetchPage_BuildsQueryAndHeaders(t *testing.T) {
	t.Parallel()

	var gotQuery url.Values
	var gotKey, gotHost string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("x-rapidapi-key")
		gotHost = r.Header.Get("x-rapidapi-host")
		_, _ = w.Write([]byte(`{"creators":[],"page_maximum":3}`))
	})

	filter := influencer.Filter{
		City:     "Austin",
		Category: "fitness",
		Platform: "TikTok",
		Bio:      "daily outfits",
		Page:     2,
	}
	page, err := client.FetchPage(context.Background(), filter, "secret-key")
	require.NoError(t, err)

	require.Equal(t, "2", gotQuery.Get("current_page"))
	require.Equal(t, "austin", gotQuery.Get("city"), "city is lower-cased")
	require.Equal(t, "fitness", gotQuery.Get("category"))
	require.Equal(t, "tiktok", gotQuery.Get("connector"), "platform is lower-cased")
	require.Equal(t, "daily outfits", gotQuery.Get("bio"))
	require.Equal(t, "secret-key", gotKey)
	require.Equal(t, "discovery.test", gotHost)
	require.Equal(t, 3, page.TotalPages)
	require.Equal(t, 2, page.Number)
}

func TestFetchPage_SentinelsOmitParameters(t *testing.T) {
	t.Parallel()

	var gotQuery url.Values
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{}`))
	})

	filter := influencer.Filter{City: influencer.AnyCity, Platform: influencer.AnyPlatform}
	_, err := client.FetchPage(context.Background(), filter, "k")
	require.NoError(t, err)

	require.False(t, gotQuery.Has("city"))
	require.False(t, gotQuery.Has("connector"))
	require.False(t, gotQuery.Has("category"))
	require.False(t, gotQuery.Has("bio"))
	require.Equal(t, "1", gotQuery.Get("current_page"), "missing page defaults to 1")
}

func TestFetchPage_NormalizesCreators(t *testing.T) {
	t.Parallel()

	body := `{
		"creators": [
			{"handle_link":"https://instagram.com/jane","handle":"jane","connector":"instagram","followers":120000,"engagement":4.2,"bio":"coffee","city":"Austin","country":"US","category":"Food"},
			{"handle":"mystery","connector":"TIKTOK"}
		],
		"page_maximum": 7
	}`
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	})

	page, err := client.FetchPage(context.Background(), influencer.Filter{Page: 1}, "k")
	require.NoError(t, err)
	require.Len(t, page.Records, 2)

	first := page.Records[0]
	require.Equal(t, "https://instagram.com/jane", first.ID)
	require.Equal(t, "Instagram", first.Platform)
	require.Equal(t, int64(120000), first.Followers)
	require.InDelta(t, 4.2, first.EngagementRate, 0.001)

	second := page.Records[1]
	require.Equal(t, "tiktok/mystery", second.ID, "missing handle_link falls back to platform/handle")
	require.Equal(t, "Tiktok", second.Platform, "connector goes through capitalize")
	require.Zero(t, second.Followers, "missing followers default to 0")
	require.Zero(t, second.EngagementRate)
	require.Empty(t, second.Bio)
	require.Equal(t, "N/A", second.City)
	require.Equal(t, "N/A", second.Country)
	require.Equal(t, "N/A", second.Category)
}

func TestFetchPage_MissingCreatorsAndPageMaximum(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	page, err := client.FetchPage(context.Background(), influencer.Filter{}, "k")
	require.NoError(t, err)
	require.Empty(t, page.Records)
	require.Equal(t, 1, page.TotalPages, "absent page_maximum means no more pages")
}

func TestFetchPage_HTTPErrorIsTransportError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	_, err := client.FetchPage(context.Background(), influencer.Filter{Page: 3}, "k")
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)
	require.Equal(t, 3, transportErr.Page)
}

func TestFetchPage_BadJSONIsParseError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"creators": [`))
	})

	_, err := client.FetchPage(context.Background(), influencer.Filter{}, "k")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestFetchPage_ContextCancellation(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchPage(ctx, influencer.Filter{}, "k")
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.True(t, errors.Is(err, context.Canceled) || transportErr.Err != nil)
}
