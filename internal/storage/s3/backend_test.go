package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/webvfs/internal/storage"
	"github.com/objectfs/webvfs/internal/storage/storagetest"
	"github.com/objectfs/webvfs/pkg/errors"
)

// fakeS3 is an in-memory bucket. Listings return at most pageSize keys per
// page so pagination is exercised.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	classes  map[string]s3types.StorageClass
	pageSize int
	failPut  error
	noBucket bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  make(map[string][]byte),
		classes:  make(map[string]s3types.StorageClass),
		pageSize: 2,
	}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return nil, f.failPut
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.classes[key] = in.StorageClass
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.noBucket {
		return nil, &s3types.NotFound{Message: aws.String(aws.ToString(in.Bucket))}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	delimiter := aws.ToString(in.Delimiter)
	var keys []string
	for key := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if delimiter != "" && strings.Contains(key[len(prefix):], delimiter) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	offset := 0
	if in.ContinuationToken != nil {
		offset, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := offset + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, key := range keys[offset:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func testConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Bucket = "test-bucket"
	return cfg
}

func TestBackendContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return NewBackend(newFakeS3(), nil, testConfig(), nil)
	}, storagetest.ParentFromPath())
}

func TestBackend_ObjectLayout(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	cfg := testConfig()
	cfg.StorageTier = TierStandardIA
	b := NewBackend(fake, nil, cfg, nil)

	require.NoError(t, b.Put(ctx, storagetest.Dir("/", "")))
	require.NoError(t, b.Put(ctx, storagetest.File("/home/notes.txt", "/home", []byte("hi"))))

	assert.Contains(t, fake.objects, "webvfs/n/")
	assert.Contains(t, fake.objects, "webvfs/n/home/notes.txt")
	assert.Equal(t, s3types.StorageClassStandardIa, fake.classes["webvfs/n/home/notes.txt"])
}

func TestBackend_SiblingPrefixNotListed(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(newFakeS3(), nil, testConfig(), nil)

	require.NoError(t, b.Put(ctx, storagetest.Dir("/home", "/")))
	require.NoError(t, b.Put(ctx, storagetest.Dir("/homework", "/")))
	require.NoError(t, b.Put(ctx, storagetest.File("/home/a", "/home", nil)))
	require.NoError(t, b.Put(ctx, storagetest.File("/homework/b", "/homework", nil)))

	children, err := b.GetChildren(ctx, "/home")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "/home/a", children[0].Path)
}

func TestBackend_ManyChildrenPaginate(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(newFakeS3(), nil, testConfig(), nil)

	for i := 0; i < 7; i++ {
		require.NoError(t, b.Put(ctx, storagetest.File(fmt.Sprintf("/d/f%d", i), "/d", nil)))
	}
	children, err := b.GetChildren(ctx, "/d")
	require.NoError(t, err)
	assert.Len(t, children, 7)
}

func TestBackend_PutFailureIsStorageWrite(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.failPut = fmt.Errorf("connection reset")
	b := NewBackend(fake, nil, testConfig(), nil)

	err := b.Put(ctx, storagetest.File("/f", "/", []byte("x")))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStorageWrite, errors.CodeOf(err))

	m := b.GetMetrics()
	assert.Equal(t, int64(1), m.Errors)
	assert.Contains(t, m.LastError, "connection reset")
}

func TestBackend_InitChecksBucket(t *testing.T) {
	fake := newFakeS3()
	fake.noBucket = true
	b := NewBackend(fake, nil, testConfig(), nil)

	err := b.Init(context.Background())
	assert.Equal(t, errors.ErrCodeInitFailed, errors.CodeOf(err))
}

func TestBackend_MetricsCountTraffic(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(newFakeS3(), nil, testConfig(), nil)

	require.NoError(t, b.Put(ctx, storagetest.File("/f", "/", []byte("payload"))))
	_, err := b.Get(ctx, "/f")
	require.NoError(t, err)
	_, err = b.Get(ctx, "/missing")
	require.Error(t, err)

	m := b.GetMetrics()
	assert.Equal(t, int64(3), m.Requests)
	assert.Zero(t, m.Errors, "missing keys are not errors")
	assert.Positive(t, m.BytesUploaded)
	assert.Equal(t, m.BytesUploaded, m.BytesDownloaded)
}

func TestNewClient_EmptyBucket(t *testing.T) {
	_, _, err := NewClient(context.Background(), NewDefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name cannot be empty")
}

func TestStorageClass(t *testing.T) {
	tests := []struct {
		tier string
		want s3types.StorageClass
	}{
		{TierStandard, s3types.StorageClassStandard},
		{TierStandardIA, s3types.StorageClassStandardIa},
		{TierOneZoneIA, s3types.StorageClassOnezoneIa},
		{TierIntelligent, s3types.StorageClassIntelligentTiering},
		{"", s3types.StorageClassStandard},
	}
	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			assert.Equal(t, tt.want, storageClass(tt.tier))
		})
	}
}
