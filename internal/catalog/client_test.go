package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCatalogDecodesVideoList(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"videos":[
			{"id":"v1","filename":"clip1.mp4","size":1000,"optimizing":false,"title":"First"},
			{"id":"v2","filename":"clip2.mp4","size":0,"optimizing":true,"title":"Second"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &http.Client{})
	videos, err := c.FetchCatalog(context.Background(), "code123")
	require.NoError(t, err)
	assert.Equal(t, "/api/catalog/code123", gotPath)
	require.Len(t, videos, 2)
	assert.Equal(t, "v1", videos[0].ID)
	assert.Equal(t, "clip1.mp4", videos[0].SourceLocator)
	assert.Equal(t, int64(1000), videos[0].SizeBytes)
	assert.True(t, videos[1].IsOptimizing)
}

func TestFetchCatalogFailuresWrapUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &http.Client{})
	_, err := c.FetchCatalog(context.Background(), "code123")
	require.ErrorIs(t, err, ErrCatalogUnreachable)

	// Connection refused wraps the same way.
	srv.Close()
	_, err = c.FetchCatalog(context.Background(), "code123")
	require.ErrorIs(t, err, ErrCatalogUnreachable)
}

func TestFetchCatalogBadJSONWrapsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"videos":[`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &http.Client{})
	_, err := c.FetchCatalog(context.Background(), "code123")
	require.ErrorIs(t, err, ErrCatalogUnreachable)
}

func TestMediaURL(t *testing.T) {
	c := NewClient("http://host:8080/", &http.Client{})
	assert.Equal(t, "http://host:8080/media/clip1.mp4", c.MediaURL("clip1.mp4"))
	assert.Equal(t, "http://host:8080/media/clip1.mp4", c.MediaURL("/clip1.mp4"))
}
