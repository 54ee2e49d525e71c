// Package s3 implements datasource.Store on Amazon S3 (and S3-compatible
// endpoints) using aws-sdk-go. The s3, s3a and s3n schemes all resolve here.
package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"songlake/internal/datasource"
)

// deleteBatch is the DeleteObjects per-request key limit.
const deleteBatch = 1000

func init() {
	open := func(_ context.Context, u *url.URL, _ string, opts datasource.Options) (datasource.Store, error) {
		if u.Host == "" {
			return nil, fmt.Errorf("s3: uri %q has no bucket", u.String())
		}
		sess, err := NewSession(opts)
		if err != nil {
			return nil, err
		}
		api := s3.New(sess)
		return New(api, s3manager.NewUploaderWithClient(api), u.Host, u.Path), nil
	}
	for _, scheme := range []string{"s3", "s3a", "s3n"} {
		datasource.Register(scheme, open)
	}
}

// NewSession builds an AWS session from the pipeline options. Static keys are
// used when present; otherwise the SDK default chain applies.
func NewSession(opts datasource.Options) (*session.Session, error) {
	cfg := aws.NewConfig()
	if opts.AWS.Region != "" {
		cfg = cfg.WithRegion(opts.AWS.Region)
	}
	if opts.AWS.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.AWS.Endpoint)
	}
	if opts.AWS.PathStyle {
		cfg = cfg.WithS3ForcePathStyle(true)
	}
	if !opts.Credentials.Empty() {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(
			opts.Credentials.AccessKeyID, opts.Credentials.SecretAccessKey, ""))
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("s3: new session: %w", err)
	}
	return sess, nil
}

// Store is a datasource.Store over one bucket and key prefix.
type Store struct {
	bucket   string
	prefix   string
	api      s3iface.S3API
	uploader s3manageriface.UploaderAPI
}

// New returns a Store. prefix is normalized to either "" or "dir/".
func New(api s3iface.S3API, uploader s3manageriface.UploaderAPI, bucket, prefix string) *Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Store{bucket: bucket, prefix: prefix, api: api, uploader: uploader}
}

// URI implements datasource.Store.
func (s *Store) URI() string { return "s3://" + s.bucket + "/" + s.prefix }

func (s *Store) full(key string) string { return s.prefix + strings.TrimPrefix(key, "/") }

// List pages through ListObjectsV2 and returns keys relative to the store
// prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.full(prefix)),
	}
	var out []string
	err := s.api.ListObjectsV2PagesWithContext(ctx, in, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			k := aws.StringValue(obj.Key)
			if strings.HasSuffix(k, "/") {
				continue
			}
			out = append(out, strings.TrimPrefix(k, s.prefix))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("s3: list s3://%s/%s: %w", s.bucket, s.full(prefix), err)
	}
	sort.Strings(out)
	return out, nil
}

// Open streams the object body. The caller closes it.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	res, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.full(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: get s3://%s/%s: %w", s.bucket, s.full(key), err)
	}
	return res.Body, nil
}

// Put uploads r, using multipart upload for large bodies.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.full(key)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("s3: put s3://%s/%s: %w", s.bucket, s.full(key), err)
	}
	return nil
}

// RemoveAll deletes every object below prefix in batches of 1000.
func (s *Store) RemoveAll(ctx context.Context, prefix string) error {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Errorf("s3: refusing to remove store root %s", s.URI())
	}
	keys, err := s.List(ctx, prefix+"/")
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += deleteBatch {
		end := start + deleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, &s3.ObjectIdentifier{Key: aws.String(s.full(k))})
		}
		res, err := s.api.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3: delete under s3://%s/%s: %w", s.bucket, s.full(prefix), err)
		}
		if len(res.Errors) > 0 {
			e := res.Errors[0]
			return fmt.Errorf("s3: delete %s: %s (%d failed)", aws.StringValue(e.Key), aws.StringValue(e.Message), len(res.Errors))
		}
	}
	return nil
}
