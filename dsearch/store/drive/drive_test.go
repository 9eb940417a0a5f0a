package drive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ZanzyTHEbar/drive-search/dsearch/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// fakeDrive answers files.list from a canned set of pages keyed by pageToken
type fakeDrive struct {
	t        *testing.T
	pages    map[string]*driveapi.FileList
	status   int
	reason   string
	requests []*http.Request
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests = append(f.requests, r)
	w.Header().Set("Content-Type", "application/json")

	if f.status != 0 {
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    f.status,
				"message": "fake failure",
				"errors":  []map[string]string{{"reason": f.reason, "message": "fake failure"}},
			},
		})
		return
	}

	page, ok := f.pages[r.URL.Query().Get("pageToken")]
	if !ok {
		http.Error(w, "unknown page token", http.StatusBadRequest)
		return
	}
	assert.NoError(f.t, json.NewEncoder(w).Encode(page))
}

func newTestStore(t *testing.T, fake *fakeDrive) *Store {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Config{
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithHTTPClient(srv.Client()),
		},
	})
	require.NoError(t, err)
	return s
}

func TestList(t *testing.T) {
	fake := &fakeDrive{t: t, pages: map[string]*driveapi.FileList{
		"": {
			NextPageToken: "tok-2",
			Files: []*driveapi.File{
				{Id: "d1", Name: "Trips", MimeType: search.FolderMimeType},
				{
					Id:             "f1",
					Name:           "cat.png",
					MimeType:       "image/png",
					WebContentLink: "https://drive.invalid/content/f1",
					ThumbnailLink:  "https://drive.invalid/thumb/f1",
					WebViewLink:    "https://drive.invalid/view/f1",
				},
			},
		},
		"tok-2": {Files: []*driveapi.File{{Id: "f2", Name: "cat.gif", MimeType: "image/gif"}}},
	}}
	s := newTestStore(t, fake)
	pred := search.BuildPredicate("root", "cat")

	page, err := s.List(context.Background(), pred, 500, "")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", page.NextCursor)
	require.Len(t, page.Items, 2)

	assert.Equal(t, search.Item{ID: "d1", Name: "Trips", Kind: search.KindContainer, MediaType: search.FolderMimeType}, page.Items[0])
	assert.Equal(t, search.KindLeaf, page.Items[1].Kind)
	assert.Equal(t, map[string]string{
		search.URLContent: "https://drive.invalid/content/f1",
		search.URLPreview: "https://drive.invalid/thumb/f1",
		search.URLView:    "https://drive.invalid/view/f1",
	}, page.Items[1].URLs)

	page, err = s.List(context.Background(), pred, 500, "tok-2")
	require.NoError(t, err)
	assert.Empty(t, page.NextCursor)
	require.Len(t, page.Items, 1)
	assert.Nil(t, page.Items[0].URLs)

	require.Len(t, fake.requests, 2)
	q := fake.requests[0].URL.Query()
	assert.Equal(t, pred.String(), q.Get("q"))
	assert.Equal(t, "500", q.Get("pageSize"))
	assert.Equal(t, "true", q.Get("supportsAllDrives"))
	assert.Empty(t, q.Get("pageToken"))
	assert.Equal(t, "tok-2", fake.requests[1].URL.Query().Get("pageToken"))
}

func TestList_PageSizeCapped(t *testing.T) {
	fake := &fakeDrive{t: t, pages: map[string]*driveapi.FileList{"": {}}}
	s := newTestStore(t, fake)

	_, err := s.List(context.Background(), search.BuildPredicate("root", "x"), 0, "")
	require.NoError(t, err)
	assert.Equal(t, "1000", fake.requests[0].URL.Query().Get("pageSize"))
}

func TestList_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		reason    string
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, "rateLimitExceeded", true},
		{"server error", http.StatusServiceUnavailable, "backendError", true},
		{"user rate limit on 403", http.StatusForbidden, "userRateLimitExceeded", true},
		{"permission denied", http.StatusForbidden, "insufficientFilePermissions", false},
		{"bad query", http.StatusBadRequest, "invalid", false},
		{"missing folder", http.StatusNotFound, "notFound", false},
		{"bad credentials", http.StatusUnauthorized, "authError", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, &fakeDrive{t: t, status: tt.status, reason: tt.reason})

			_, err := s.List(context.Background(), search.BuildPredicate("folder-1", "x"), 10, "")
			require.Error(t, err)
			assert.Equal(t, tt.transient, search.IsTransient(err))
			assert.Equal(t, !tt.transient, search.IsFatal(err))
		})
	}
}

func TestClassify_PassesThroughCancellation(t *testing.T) {
	assert.ErrorIs(t, classify("c", context.Canceled), context.Canceled)
	assert.False(t, search.IsFatal(classify("c", context.Canceled)))
}
