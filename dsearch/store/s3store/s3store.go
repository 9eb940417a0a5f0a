// Package s3store treats an S3 bucket as a container tree: common prefixes
// under a "/" delimiter are containers, objects are leaves.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/ZanzyTHEbar/drive-search/dsearch/search"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const delimiter = "/"

// Config holds S3 connection settings
type Config struct {
	Endpoint     string
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// ListObjectsAPI is the slice of the S3 client the store needs
type ListObjectsAPI interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store implements search.Lister over ListObjectsV2
type Store struct {
	client ListObjectsAPI
	bucket string
}

// New creates an S3 backed store. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket cannot be empty")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle // MinIO needs path style
	})

	return NewWithClient(client, cfg.Bucket), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client ListObjectsAPI, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// RootRef returns the container ref for a key prefix. The bucket root is "/".
func RootRef(prefix string) search.ContainerRef {
	prefix = strings.TrimPrefix(prefix, delimiter)
	if prefix == "" {
		return delimiter
	}
	if !strings.HasSuffix(prefix, delimiter) {
		prefix += delimiter
	}
	return search.ContainerRef(prefix)
}

// List implements search.Lister. S3 cannot filter by name server-side, so the
// predicate is evaluated on each returned page; a filtered page may be short
// or empty while NextCursor still points at more keys.
func (s *Store) List(ctx context.Context, pred search.Predicate, pageSize int, cursor string) (search.Page, error) {
	if pageSize <= 0 || pageSize > search.MaxPageSize {
		pageSize = search.MaxPageSize
	}

	prefix := string(pred.Parent)
	if prefix == delimiter {
		prefix = ""
	}

	in := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
		MaxKeys:   aws.Int32(int32(pageSize)),
	}
	if cursor != "" {
		in.ContinuationToken = aws.String(cursor)
	}

	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		return search.Page{}, classify(pred.Parent, err)
	}

	page := search.Page{}
	for _, cp := range out.CommonPrefixes {
		p := aws.ToString(cp.Prefix)
		name := path.Base(strings.TrimSuffix(p, delimiter))
		if !pred.Match(name, true, false) {
			continue
		}
		page.Items = append(page.Items, search.Item{
			ID:   p,
			Name: name,
			Kind: search.KindContainer,
		})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key == prefix || strings.HasSuffix(key, delimiter) {
			continue // folder placeholder objects
		}
		name := path.Base(key)
		if !pred.Match(name, false, false) {
			continue
		}
		page.Items = append(page.Items, search.Item{
			ID:        key,
			Name:      name,
			Kind:      search.KindLeaf,
			MediaType: search.MediaTypeForName(name),
			URLs:      map[string]string{search.URLContent: "s3://" + s.bucket + "/" + key},
		})
	}

	if aws.ToBool(out.IsTruncated) {
		page.NextCursor = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// classify maps S3 API error codes onto the fetch error taxonomy
func classify(container search.ContainerRef, err error) error {
	if search.IsCancellation(err) {
		return err
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return search.Classify(container, err)
	}

	switch apiErr.ErrorCode() {
	case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout", "RequestTimeTooSkewed", "Throttling", "ThrottlingException":
		return search.Transient(container, err)
	default:
		if apiErr.ErrorFault() == smithy.FaultServer {
			return search.Transient(container, err)
		}
		return search.Fatal(container, err)
	}
}
