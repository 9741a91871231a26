package artifacts

import (
	"context"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// NewTestS3Store serves an in-memory bucket over HTTP and returns a store
// for it, configured the way `run` configures a custom S3 endpoint.
func NewTestS3Store(t testing.TB, bucket string) *S3Store {
	t.Helper()
	ts := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(ts.Close)

	ctx := context.Background()
	store, err := NewS3Store(ctx, S3Config{
		Endpoint:        ts.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		BucketName:      bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("artifacts: test store: %v", err)
	}
	if _, err := store.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("artifacts: create bucket %s: %v", bucket, err)
	}
	return store
}

// RunKeys lists, sorted, every key stored for runID.
func RunKeys(t testing.TB, store *S3Store, runID string) []string {
	t.Helper()
	var keys []string
	pages := s3.NewListObjectsV2Paginator(store.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(store.bucketName),
		Prefix: aws.String(runID + "/"),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(context.Background())
		if err != nil {
			t.Fatalf("artifacts: list %s: %v", runID, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	slices.Sort(keys)
	return keys
}
