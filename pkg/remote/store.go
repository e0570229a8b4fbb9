package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNoBucket is returned when S3 is used without a bucket.
var ErrNoBucket = errors.New("remote: s3 bucket not configured")

// ObjectStore uploads and downloads whole objects.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	Download(ctx context.Context, key string, dst io.WriterAt) (int64, error)
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint, e.g. for MinIO. Path-style
	// addressing is used when it is set.
	Endpoint string
	PartSize int64
}

// S3Store is an ObjectStore backed by the S3 transfer managers.
type S3Store struct {
	bucket     string
	prefix     string
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Store loads the default AWS configuration and creates a store.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, ErrNoBucket
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreWithClient(client, opts), nil
}

// NewS3StoreWithClient creates a store around an existing client.
func NewS3StoreWithClient(client *s3.Client, opts S3Options) *S3Store {
	partSize := max(opts.PartSize, manager.MinUploadPartSize)

	return &S3Store{
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = partSize
		}),
	}
}

func (s *S3Store) objectKey(key string) string {
	return path.Join(s.prefix, key)
}

// Upload implements ObjectStore using multipart uploads for large bodies.
func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", s.bucket, s.objectKey(key), err)
	}

	return nil
}

// Download implements ObjectStore using parallel ranged reads.
func (s *S3Store) Download(ctx context.Context, key string, dst io.WriterAt) (int64, error) {
	n, err := s.downloader.Download(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return 0, fmt.Errorf("download s3://%s/%s: %w", s.bucket, s.objectKey(key), err)
	}

	return n, nil
}

// WorkspaceKey is the object key of a repository's workspace archive.
func WorkspaceKey(repoHash string) string {
	return repoHash + ArchiveExtension
}

// Push archives dir and uploads it under key. Packing streams into the
// upload through a pipe.
func Push(ctx context.Context, store ObjectStore, key, dir string) error {
	_, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("push %s: %w", dir, err)
	}

	pr, pw := io.Pipe()

	go func() {
		pw.CloseWithError(Pack(pw, dir))
	}()

	err = store.Upload(ctx, key, pr)

	// Unblocks the packer if the upload stopped reading early.
	_ = pr.CloseWithError(err)

	if err != nil {
		return fmt.Errorf("push %s: %w", dir, err)
	}

	return nil
}

// Pull downloads key into a temporary file and unpacks it over dir.
func Pull(ctx context.Context, store ObjectStore, key, dir string) (int64, error) {
	tmp, err := os.CreateTemp("", "gitrecommender-pull-*"+ArchiveExtension)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	n, err := store.Download(ctx, key, tmp)
	if err != nil {
		return 0, fmt.Errorf("pull %s: %w", key, err)
	}

	_, err = tmp.Seek(0, io.SeekStart)
	if err != nil {
		return 0, fmt.Errorf("rewind %s: %w", tmp.Name(), err)
	}

	err = Unpack(tmp, dir)
	if err != nil {
		return 0, fmt.Errorf("pull %s: %w", key, err)
	}

	return n, nil
}
