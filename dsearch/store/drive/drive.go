// Package drive lists Google Drive folders for the search engine
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ZanzyTHEbar/drive-search/dsearch/search"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const listFields = "nextPageToken, files(id, name, mimeType, webContentLink, thumbnailLink, webViewLink)"

// Config holds Drive connection settings
type Config struct {
	CredentialsFile string
	// ClientOptions are appended after the credentials option; tests use
	// them to point the client at a fake endpoint.
	ClientOptions []option.ClientOption
}

// Store implements search.Lister over the Drive v3 files API
type Store struct {
	files *drive.FilesService
}

// New creates a read-only Drive client
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []option.ClientOption{option.WithScopes(drive.DriveReadonlyScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, cfg.ClientOptions...)

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Store{files: srv.Files}, nil
}

// List implements search.Lister
func (s *Store) List(ctx context.Context, pred search.Predicate, pageSize int, cursor string) (search.Page, error) {
	if pageSize <= 0 || pageSize > search.MaxPageSize {
		pageSize = search.MaxPageSize
	}

	call := s.files.List().
		Q(pred.String()).
		Fields(listFields).
		PageSize(int64(pageSize)).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if cursor != "" {
		call = call.PageToken(cursor)
	}

	res, err := call.Do()
	if err != nil {
		return search.Page{}, classify(pred.Parent, err)
	}

	page := search.Page{
		Items:      make([]search.Item, 0, len(res.Files)),
		NextCursor: res.NextPageToken,
	}
	for _, f := range res.Files {
		page.Items = append(page.Items, toItem(f))
	}
	return page, nil
}

func toItem(f *drive.File) search.Item {
	it := search.Item{
		ID:        f.Id,
		Name:      f.Name,
		Kind:      search.KindLeaf,
		MediaType: f.MimeType,
	}
	if f.MimeType == search.FolderMimeType {
		it.Kind = search.KindContainer
		return it
	}

	urls := make(map[string]string, 3)
	if f.WebContentLink != "" {
		urls[search.URLContent] = f.WebContentLink
	}
	if f.ThumbnailLink != "" {
		urls[search.URLPreview] = f.ThumbnailLink
	}
	if f.WebViewLink != "" {
		urls[search.URLView] = f.WebViewLink
	}
	if len(urls) > 0 {
		it.URLs = urls
	}
	return it
}

// classify maps Drive API failures onto the fetch error taxonomy
func classify(container search.ContainerRef, err error) error {
	if search.IsCancellation(err) {
		return err
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return search.Classify(container, err)
	}

	switch {
	case gerr.Code == http.StatusTooManyRequests,
		gerr.Code == http.StatusRequestTimeout,
		gerr.Code >= http.StatusInternalServerError:
		return search.Transient(container, err)
	case gerr.Code == http.StatusForbidden && isRateLimitReason(gerr):
		return search.Transient(container, err)
	default:
		return search.Fatal(container, err)
	}
}

func isRateLimitReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "backendError":
			return true
		}
	}
	return false
}
