package source

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/forgekit/assetcore/cmn"
)

// S3Source addresses assets as s3://bucket/key, priority 10 (above LocalFS,
// below an explicit HTTP override).
type S3Source struct {
	svc      *s3.S3
	priority int
}

func NewS3Source(region string) (*S3Source, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "s3 source: new session: %v", err)
	}
	return &S3Source{svc: s3.New(sess), priority: 10}, nil
}

func (s *S3Source) Name() string  { return "s3" }
func (s *S3Source) Priority() int { return s.priority }

func parseS3(path string) (bucket, key string, ok bool) {
	rest := strings.TrimPrefix(path, "s3://")
	if rest == path {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (s *S3Source) head(path string) (*s3.HeadObjectOutput, bool) {
	bucket, key, ok := parseS3(path)
	if !ok {
		return nil, false
	}
	out, err := s.svc.HeadObject(&s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, false
	}
	return out, true
}

func (s *S3Source) Exists(path string) bool {
	_, ok := s.head(path)
	return ok
}

func (s *S3Source) Size(path string) (int64, error) {
	out, ok := s.head(path)
	if !ok {
		return 0, cmn.NewError(cmn.ErrNotFound, "s3 source: %s: not found", path)
	}
	return aws.Int64Value(out.ContentLength), nil
}

func (s *S3Source) Mtime(path string) (time.Time, error) {
	out, ok := s.head(path)
	if !ok {
		return time.Time{}, cmn.NewError(cmn.ErrNotFound, "s3 source: %s: not found", path)
	}
	return aws.TimeValue(out.LastModified), nil
}

func (s *S3Source) ReadAll(path string) ([]byte, error) {
	bucket, key, ok := parseS3(path)
	if !ok {
		return nil, cmn.NewError(cmn.ErrNotFound, "s3 source: %s: not an s3:// path", path)
	}
	out, err := s.svc.GetObject(&s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, translateAwsErr(path, err)
	}
	defer out.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "s3 source: read body %s: %v", path, err)
	}
	return buf.Bytes(), nil
}

func (s *S3Source) OpenStream(path string) (io.ReadCloser, error) {
	bucket, key, ok := parseS3(path)
	if !ok {
		return nil, cmn.NewError(cmn.ErrNotFound, "s3 source: %s: not an s3:// path", path)
	}
	out, err := s.svc.GetObject(&s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, translateAwsErr(path, err)
	}
	return out.Body, nil
}

func (s *S3Source) Map(path string) (Mapping, error) {
	return nil, cmn.NewError(cmn.ErrIO, "s3 source: memory mapping not supported for network sources")
}

func translateAwsErr(path string, err error) error {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket:
			return cmn.NewError(cmn.ErrNotFound, "s3 source: %s: %v", path, aerr)
		}
	}
	return cmn.NewError(cmn.ErrIO, "s3 source: %s: %v", path, err)
}
