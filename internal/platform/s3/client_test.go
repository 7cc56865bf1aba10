package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, region string, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
	})
	return &Client{s3: client, region: region}
}

func xmlResponse(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

func TestEnsureBucket_CreatesWithLocationConstraint(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var createBody string
	client := testClient(t, "ap-southeast-2", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			createBody = string(body)
			mu.Unlock()
			xmlResponse(w, http.StatusOK, `<?xml version="1.0" encoding="UTF-8"?><CreateBucketResult/>`)
		}
	}))

	created, err := client.EnsureBucket(context.Background(), "registry")
	require.NoError(t, err)
	assert.True(t, created)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, createBody, "<LocationConstraint>ap-southeast-2</LocationConstraint>")
}

func TestEnsureBucket_AlreadyExists(t *testing.T) {
	t.Parallel()

	var puts atomic.Int32
	client := testClient(t, "ap-southeast-2", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			puts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))

	created, err := client.EnsureBucket(context.Background(), "registry")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Zero(t, puts.Load())
}

func TestEnsureBucket_OwnedByYouRace(t *testing.T) {
	t.Parallel()

	client := testClient(t, "us-east-1", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		xmlResponse(w, http.StatusConflict, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>BucketAlreadyOwnedByYou</Code><Message>exists</Message></Error>`)
	}))

	created, err := client.EnsureBucket(context.Background(), "registry")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestBucketExists_OtherError(t *testing.T) {
	t.Parallel()

	client := testClient(t, "us-east-1", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.BucketExists(context.Background(), "registry")
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	client, err := NewClient(context.Background(), "ap-southeast-2", "key", "secret", "")
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-2", client.region)
}
