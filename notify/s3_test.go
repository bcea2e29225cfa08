package notify

import (
	"context"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzbi/beacon/query"
	"github.com/quartzbi/beacon/report"
)

type putCall struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

type fakeS3 struct {
	calls []putCall
	err   error
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(input.Body)
	f.calls = append(f.calls, putCall{
		bucket:      aws.StringValue(input.Bucket),
		key:         aws.StringValue(input.Key),
		contentType: aws.StringValue(input.ContentType),
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func TestS3KeyLayout(t *testing.T) {
	key := s3Key("weekly revenue", fixedClock(), "pdf")
	matched, err := regexp.MatchString(`^weekly revenue/2026-03-14/weekly revenue-[0-9A-Za-z]+\.pdf$`, key)
	require.NoError(t, err)
	assert.True(t, matched, "unexpected key layout: %s", key)
}

func TestS3UploadsEachArtifact(t *testing.T) {
	client := &fakeS3{}
	channel := &S3Channel{client: client, bucket: "default-bucket", now: fixedClock}

	env := &Envelope{
		Name:        "weekly revenue",
		Screenshots: [][]byte{[]byte("png-1"), []byte("png-2")},
		CSV:         []byte("a,b\n1,2\n"),
	}
	recipient := report.Recipient{ID: 3, Type: report.RecipientS3, ConfigJSON: `{"target": "reports-bucket"}`}

	err := channel.Deliver(context.Background(), recipient, env)
	require.NoError(t, err)
	require.Len(t, client.calls, 3)

	assert.Equal(t, "reports-bucket", client.calls[0].bucket)
	assert.Equal(t, "image/png", client.calls[0].contentType)
	assert.Equal(t, "image/png", client.calls[1].contentType)
	assert.Equal(t, "text/csv", client.calls[2].contentType)
	assert.Equal(t, []byte("a,b\n1,2\n"), client.calls[2].body)

	// Distinct objects even for artifacts uploaded in the same second
	assert.NotEqual(t, client.calls[0].key, client.calls[1].key)
}

func TestS3FallsBackToConfiguredBucket(t *testing.T) {
	client := &fakeS3{}
	channel := &S3Channel{client: client, bucket: "default-bucket", now: fixedClock}

	recipient := report.Recipient{ID: 3, Type: report.RecipientS3, ConfigJSON: `{"target": ""}`}
	err := channel.Deliver(context.Background(), recipient, &Envelope{
		Name: "r",
		CSV:  []byte("x\n"),
	})
	require.NoError(t, err)
	require.Len(t, client.calls, 1)
	assert.Equal(t, "default-bucket", client.calls[0].bucket)
}

func TestS3EmbeddedFrameUploadsAsText(t *testing.T) {
	client := &fakeS3{}
	channel := &S3Channel{client: client, bucket: "b", now: fixedClock}

	env := &Envelope{
		Name:  "r",
		Frame: &query.Frame{Columns: []string{"v"}, Rows: [][]any{{1.0}}},
	}
	recipient := report.Recipient{ID: 3, Type: report.RecipientS3, ConfigJSON: `{"target": "b"}`}
	require.NoError(t, channel.Deliver(context.Background(), recipient, env))
	require.Len(t, client.calls, 1)
	assert.Equal(t, "text/plain", client.calls[0].contentType)
	assert.Contains(t, client.calls[0].key, ".txt")
}
