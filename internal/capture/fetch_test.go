package capture

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFetcher(maxRedirects int) *Fetcher {
	return NewFetcher(FetchConfig{
		MaxRedirects: maxRedirects,
		Timeout:      5 * time.Second,
		UserAgent:    "webseal-test",
	}, zap.NewNop())
}

func TestFetchSingleHop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "webseal-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer srv.Close()

	res, err := newTestFetcher(5).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	require.Len(t, res.Hops, 1)
	assert.Equal(t, http.StatusOK, res.Hops[0].Status)
	assert.Equal(t, "OK", res.Hops[0].StatusText)
	assert.Equal(t, http.MethodGet, res.Hops[0].Method)
	assert.Nil(t, res.Hops[0].Location)
	require.NotNil(t, res.Hops[0].BodySize)
	assert.Equal(t, int64(15), *res.Hops[0].BodySize)

	assert.Equal(t, srv.URL, res.FinalURL)
	assert.Equal(t, http.StatusOK, res.FinalStatus)
	assert.Equal(t, "<html>ok</html>", string(res.Body))
	assert.Equal(t, "text/html; charset=utf-8", res.ContentType)
	assert.Equal(t, int64(15), res.SizeBytes)
	assert.Empty(t, res.Errors)
}

func TestFetchRelativeRedirectResolution(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/next")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "arrived")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := newTestFetcher(5).Fetch(context.Background(), srv.URL+"/a")
	require.NoError(t, err)

	require.Len(t, res.Hops, 2)
	assert.Equal(t, http.StatusFound, res.Hops[0].Status)
	require.NotNil(t, res.Hops[0].Location)
	assert.Equal(t, srv.URL+"/next", *res.Hops[0].Location)
	assert.Equal(t, srv.URL+"/next", res.Hops[1].URL)
	assert.Equal(t, srv.URL+"/next", res.FinalURL)
	assert.Equal(t, "arrived", string(res.Body))
	assert.Empty(t, res.Errors)
}

func TestFetchEncodedRedirectResolution(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/path%20with/space?q=a%2Fb")
		w.WriteHeader(http.StatusMovedPermanently)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "deep")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := newTestFetcher(5).Fetch(context.Background(), srv.URL+"/start")
	require.NoError(t, err)
	require.Len(t, res.Hops, 2)
	assert.Contains(t, res.Hops[1].URL, "/path%20with/space")
	assert.Empty(t, res.Errors)
}

func TestFetchRedirectBound(t *testing.T) {
	var srv *httptest.Server
	hops := 0
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		w.Header().Set("Location", fmt.Sprintf("/hop/%d", hops))
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	res, err := newTestFetcher(2).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	// maxRedirects+1 requests are issued; the chain stays bounded and the
	// overflow is a soft failure with a best-effort result.
	assert.LessOrEqual(t, len(res.Hops), 4)
	assert.Len(t, res.Hops, 3)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, strings.Join(res.Errors, " "), "maximum redirects")
	assert.Equal(t, http.StatusFound, res.FinalStatus)
}

func TestFetchErrorStatusIsValidFinalHop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	res, err := newTestFetcher(5).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	require.Len(t, res.Hops, 1)
	assert.Equal(t, http.StatusNotFound, res.FinalStatus)
	assert.Empty(t, res.Errors, "a 404 is evidence, not a failure")
}

func TestFetchRedirectStatusWithoutLocationIsFinal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer srv.Close()

	res, err := newTestFetcher(5).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, res.Hops, 1)
	assert.Equal(t, http.StatusMovedPermanently, res.FinalStatus)
	assert.Empty(t, res.Errors)
}

func TestFetchTransportFailureSyntheticHop(t *testing.T) {
	// A server that is already closed guarantees a refused connection.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL
	srv.Close()

	res, err := newTestFetcher(5).Fetch(context.Background(), target)
	require.NoError(t, err, "transport failures are recorded, not raised")

	require.Len(t, res.Hops, 1)
	hop := res.Hops[0]
	assert.Equal(t, 0, hop.Status)
	assert.Empty(t, hop.Headers)
	assert.Nil(t, hop.BodySize)
	assert.Equal(t, 0, res.FinalStatus)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "failed")
}

func TestFetchMalformedURL(t *testing.T) {
	f := newTestFetcher(5)

	_, err := f.Fetch(context.Background(), "not-a-url")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "ftp://example.com/file")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "http://bad url/%zz")
	assert.Error(t, err)
}

func TestFetchPreservesMultiValuedHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	res, err := newTestFetcher(5).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	cookie := res.FinalHeaders["Set-Cookie"]
	assert.True(t, cookie.IsMulti())
	assert.Equal(t, []string{"a=1", "b=2"}, cookie.Values())
}

func TestFetchCustomHeaders(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Evidence-Case")
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{
		MaxRedirects: 1,
		Timeout:      5 * time.Second,
		Headers:      map[string]string{"X-Evidence-Case": "case-42"},
	}, zap.NewNop())

	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "case-42", got)
}
