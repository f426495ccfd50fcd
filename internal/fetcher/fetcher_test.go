package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismfeed/prism/pkg/models"
)

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "prism-feed-fetcher/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte("<rss></rss>"))
	}))
	defer srv.Close()

	result, err := New().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("<rss></rss>"), result.Body)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "application/rss+xml", result.ContentType)
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, ErrHTTPState, KindOf(err))

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusGone, fe.StatusCode)
	assert.Equal(t, models.FetchError, fe.Outcome())
}

func TestFetchEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, ErrEmptyBody, KindOf(err))

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.FetchEmpty, fe.Outcome())
}

func TestFetchBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	_, err := New(WithMaxBodyBytes(1024)).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, ErrTooLarge, KindOf(err))
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New().Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.Equal(t, ErrTimeout, KindOf(err))

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.FetchTimeout, fe.Outcome())
}

func TestFetchDNSFailure(t *testing.T) {
	_, err := New().Fetch(context.Background(), "http://feed.invalid.prism-nonexistent-host/rss")
	require.Error(t, err)
	kind := KindOf(err)
	assert.Contains(t, []ErrorKind{ErrDNS, ErrNetwork}, kind)
}

func TestKindOfNonFetchError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(context.Canceled))
}
