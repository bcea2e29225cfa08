package notify

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/lithammer/shortuuid/v4"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/report"
)

// S3Channel drops artifacts into an object store bucket. With explicit
// keys configured a static credential provider is used; otherwise the AWS
// default chain applies (shared config file, then instance role).
type S3Channel struct {
	client s3PutObjectAPI
	bucket string
	now    func() time.Time
}

type s3PutObjectAPI interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

func NewS3Channel(cfg config.S3Config) (*S3Channel, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating aws session")
	}
	return &S3Channel{client: s3.New(sess), bucket: cfg.Bucket, now: time.Now}, nil
}

func (c *S3Channel) Deliver(ctx context.Context, recipient report.Recipient, env *Envelope) error {
	rcfg, err := recipient.Config()
	if err != nil {
		return &StatusError{Code: 422, Err: err}
	}
	bucket := rcfg.Target
	if bucket == "" {
		bucket = c.bucket
	}

	for _, artifact := range s3Artifacts(env) {
		key := s3Key(env.Name, c.now().UTC(), artifact.ext)
		_, err := c.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(artifact.data),
			ContentType: aws.String(artifact.contentType),
		})
		if err != nil {
			// aws request failures expose StatusCode() themselves
			return err
		}
	}
	return nil
}

type s3Artifact struct {
	ext         string
	contentType string
	data        []byte
}

func s3Artifacts(env *Envelope) []s3Artifact {
	var artifacts []s3Artifact
	for _, shot := range env.Screenshots {
		if len(shot) > 0 {
			artifacts = append(artifacts, s3Artifact{ext: "png", contentType: "image/png", data: shot})
		}
	}
	if len(env.PDF) > 0 {
		artifacts = append(artifacts, s3Artifact{ext: "pdf", contentType: "application/pdf", data: env.PDF})
	}
	if len(env.CSV) > 0 {
		artifacts = append(artifacts, s3Artifact{ext: "csv", contentType: "text/csv", data: env.CSV})
	}
	if env.Frame != nil {
		artifacts = append(artifacts, s3Artifact{ext: "txt", contentType: "text/plain", data: []byte(textTable(env.Frame))})
	}
	return artifacts
}

// s3Key lays out objects as <name>/<YYYY-MM-DD>/<name>-<shortuuid>.<ext>
// so one prefix per report collects its daily artifacts.
func s3Key(name string, now time.Time, ext string) string {
	return fmt.Sprintf("%s/%s/%s-%s.%s", name, now.Format("2006-01-02"), name, shortuuid.New(), ext)
}
