package s3store

import (
	"context"
	"errors"
	"testing"

	"github.com/ZanzyTHEbar/drive-search/dsearch/search"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	outputs map[string]*s3.ListObjectsV2Output
	err     error
	inputs  []*s3.ListObjectsV2Input
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	out, ok := f.outputs[aws.ToString(in.ContinuationToken)]
	if !ok {
		return &s3.ListObjectsV2Output{}, nil
	}
	return out, nil
}

func TestRootRef(t *testing.T) {
	assert.Equal(t, search.ContainerRef("/"), RootRef(""))
	assert.Equal(t, search.ContainerRef("/"), RootRef("/"))
	assert.Equal(t, search.ContainerRef("photos/"), RootRef("photos"))
	assert.Equal(t, search.ContainerRef("photos/2024/"), RootRef("/photos/2024/"))
}

func TestList(t *testing.T) {
	fake := &fakeS3{outputs: map[string]*s3.ListObjectsV2Output{
		"": {
			CommonPrefixes: []types.CommonPrefix{
				{Prefix: aws.String("photos/2024/")},
				{Prefix: aws.String("photos/cats/")},
			},
			Contents: []types.Object{
				{Key: aws.String("photos/")}, // placeholder
				{Key: aws.String("photos/cat.png")},
				{Key: aws.String("photos/dog.png")},
			},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		"next": {
			Contents:    []types.Object{{Key: aws.String("photos/cat.tar.gz")}},
			IsTruncated: aws.Bool(false),
		},
	}}
	s := NewWithClient(fake, "media")
	pred := search.BuildPredicate("photos/", "cat")

	page, err := s.List(context.Background(), pred, 50, "")
	require.NoError(t, err)
	assert.Equal(t, "next", page.NextCursor)

	require.Len(t, page.Items, 3)
	assert.Equal(t, search.Item{ID: "photos/2024/", Name: "2024", Kind: search.KindContainer}, page.Items[0])
	assert.Equal(t, "cats", page.Items[1].Name)
	assert.Equal(t, search.Item{
		ID:        "photos/cat.png",
		Name:      "cat.png",
		Kind:      search.KindLeaf,
		MediaType: "image/png",
		URLs:      map[string]string{search.URLContent: "s3://media/photos/cat.png"},
	}, page.Items[2])

	in := fake.inputs[0]
	assert.Equal(t, "media", aws.ToString(in.Bucket))
	assert.Equal(t, "photos/", aws.ToString(in.Prefix))
	assert.Equal(t, "/", aws.ToString(in.Delimiter))
	assert.EqualValues(t, 50, aws.ToInt32(in.MaxKeys))
	assert.Nil(t, in.ContinuationToken)

	page, err = s.List(context.Background(), pred, 50, "next")
	require.NoError(t, err)
	assert.Empty(t, page.NextCursor)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "next", aws.ToString(fake.inputs[1].ContinuationToken))
}

func TestList_BucketRoot(t *testing.T) {
	fake := &fakeS3{}
	s := NewWithClient(fake, "media")

	_, err := s.List(context.Background(), search.BuildPredicate(RootRef(""), "x"), 0, "")
	require.NoError(t, err)
	assert.Equal(t, "", aws.ToString(fake.inputs[0].Prefix))
	assert.EqualValues(t, search.MaxPageSize, aws.ToInt32(fake.inputs[0].MaxKeys))
}

func TestList_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown", Fault: smithy.FaultServer}, true},
		{"internal error", &smithy.GenericAPIError{Code: "InternalError"}, true},
		{"unknown server fault", &smithy.GenericAPIError{Code: "Weird", Fault: smithy.FaultServer}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Fault: smithy.FaultClient}, false},
		{"no such bucket", &smithy.GenericAPIError{Code: "NoSuchBucket", Fault: smithy.FaultClient}, false},
		{"network failure", errors.New("read tcp: connection reset by peer"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewWithClient(&fakeS3{err: tt.err}, "media")

			_, err := s.List(context.Background(), search.BuildPredicate("photos/", "x"), 10, "")
			require.Error(t, err)
			assert.Equal(t, tt.transient, search.IsTransient(err))
			assert.Equal(t, !tt.transient, search.IsFatal(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	t.Run("cancellation passes through", func(t *testing.T) {
		s := NewWithClient(&fakeS3{err: context.Canceled}, "media")
		_, err := s.List(context.Background(), search.BuildPredicate("photos/", "x"), 10, "")
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, search.IsFatal(err))
	})
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	assert.Error(t, err)
}
