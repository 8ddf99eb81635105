package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildscan/qto/internal/pipeline"
)

func TestNewUploadLimiter(t *testing.T) {
	l := NewUploadLimiter(10, 1024*1024)

	assert.NotNil(t, l)
	assert.Equal(t, 10, l.requestsPerMinute)
	assert.Equal(t, int64(1024*1024), l.dailyUploadBytes)
	assert.NotNil(t, l.clients)
}

func TestUploadLimiterNoLimits(t *testing.T) {
	l := NewUploadLimiter(0, 0)

	err := l.Check("client1", 100)
	assert.NoError(t, err)

	requests, uploadBytes := l.Usage("client1")
	assert.Equal(t, 1, requests)
	assert.Equal(t, int64(100), uploadBytes)
}

func TestUploadLimiterRequestsPerMinute(t *testing.T) {
	l := NewUploadLimiter(2, 0)

	require.NoError(t, l.Check("client1", 0))
	require.NoError(t, l.Check("client1", 0))

	err := l.Check("client1", 0)
	require.Error(t, err)

	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 2, rateErr.Limit)
	assert.Positive(t, rateErr.RetryAfter)
	assert.LessOrEqual(t, rateErr.RetryAfter, time.Minute)
}

func TestUploadLimiterDailyUploadQuota(t *testing.T) {
	l := NewUploadLimiter(0, 1000)

	require.NoError(t, l.Check("client1", 600))

	err := l.Check("client1", 600)
	require.Error(t, err)

	var quotaErr *UploadQuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(1000), quotaErr.Limit)
	assert.Equal(t, int64(600), quotaErr.Used)
	assert.True(t, quotaErr.Resets.After(time.Now()))

	// The rejected upload must not be charged.
	_, uploadBytes := l.Usage("client1")
	assert.Equal(t, int64(600), uploadBytes)
}

func TestUploadLimiterClientsAreIndependent(t *testing.T) {
	l := NewUploadLimiter(1, 0)

	require.NoError(t, l.Check("client1", 0))
	require.Error(t, l.Check("client1", 0))
	assert.NoError(t, l.Check("client2", 0))
}

func TestUploadLimiterUsageUnknownClient(t *testing.T) {
	l := NewUploadLimiter(1, 0)

	requests, uploadBytes := l.Usage("nobody")
	assert.Zero(t, requests)
	assert.Zero(t, uploadBytes)
}

func TestRateLimitErrorMessages(t *testing.T) {
	rateErr := &RateLimitError{Limit: 5, RetryAfter: 30 * time.Second}
	assert.Contains(t, rateErr.Error(), "5 requests per minute")

	quotaErr := &UploadQuotaError{Limit: 1000, Used: 900, Resets: time.Now()}
	assert.Contains(t, quotaErr.Error(), "daily upload quota")
}

func TestExtractEndpointRateLimited(t *testing.T) {
	fake := &fakeExtractor{result: okResult()}
	srv := newTestServerWithConfig(fake, Config{RateLimitPerMinute: 1})
	defer srv.Close()

	pdfBytes := []byte("%PDF-1.4 test document")

	resp := multipartUpload(t, srv.URL+"/extract", pdfBytes, "en")
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = multipartUpload(t, srv.URL+"/extract", pdfBytes, "en")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestExtractEndpointDailyQuotaLimited(t *testing.T) {
	fake := &fakeExtractor{
		result: okResult(),
		cfg:    pipeline.Config{MaxUploadBytes: 20 * 1024 * 1024},
	}
	srv := newTestServerWithConfig(fake, Config{DailyUploadBytes: 16})
	defer srv.Close()

	resp := multipartUpload(t, srv.URL+"/extract", []byte("%PDF-1.4 test document"), "en")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestExtractEndpointNoLimiterByDefault(t *testing.T) {
	fake := &fakeExtractor{result: okResult()}
	srv := newTestServer(fake)
	defer srv.Close()

	pdfBytes := []byte("%PDF-1.4 test document")
	for range 3 {
		resp := multipartUpload(t, srv.URL+"/extract", pdfBytes, "en")
		require.NoError(t, resp.Body.Close())
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
