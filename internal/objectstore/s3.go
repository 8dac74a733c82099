// Package objectstore implements the content-addressed binary store for
// uploaded resumes (domain.ObjectStore): an S3-compatible backend for
// production, and a filesystem-backed fallback for local development.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

const (
	// chunkSize is the copy-buffer size used while hashing and spooling an
	// upload, bounding memory per in-flight Put.
	chunkSize = 1 << 20 // 1 MiB
	// multipartThreshold is the size above which Put switches from a single
	// PutObject to a multipart upload.
	multipartThreshold = 16 << 20
	// multipartPartSize is the per-part size of a multipart upload. S3
	// requires every part except the last to be at least 5 MiB.
	multipartPartSize = int64(8 << 20)
)

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Endpoint     string
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Store is the S3-compatible domain.ObjectStore implementation. Object
// keys are the content's SHA-256 checksum hex string, so Put is naturally
// idempotent: re-uploading identical bytes produces the same key.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store constructs an S3Store from cfg.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("objectstore: empty bucket name")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load AWS config: %w", err)
	}

	opts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}

	return &S3Store{client: s3.NewFromConfig(awsCfg, opts), bucket: cfg.Bucket}, nil
}

var _ domain.ObjectStore = (*S3Store)(nil)

// Put spools r to a temp file while computing its SHA-256 checksum (the
// object key: content addressing means the key is only known after the full
// stream has been read), then uploads from the file. Memory is bounded by
// the chunkSize copy buffer regardless of upload size; files over
// multipartThreshold go up as a multipart upload in multipartPartSize parts.
func (s *S3Store) Put(ctx domain.Context, r domain.ReadSeekCloser, contentType string) (domain.RawFileRef, error) {
	defer r.Close()

	tmp, err := os.CreateTemp("", "objectstore-*")
	if err != nil {
		return domain.RawFileRef{}, fmt.Errorf("objectstore: spool upload: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	h := sha256.New()
	size, err := io.CopyBuffer(io.MultiWriter(h, tmp), r, make([]byte, chunkSize))
	if err != nil {
		return domain.RawFileRef{}, fmt.Errorf("objectstore: hash upload: %w", err)
	}
	checksum := hex.EncodeToString(h.Sum(nil))

	if size > multipartThreshold {
		if err := s.putMultipart(ctx, checksum, contentType, tmp, size); err != nil {
			return domain.RawFileRef{}, err
		}
		return domain.RawFileRef{FileID: checksum, Checksum: checksum}, nil
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return domain.RawFileRef{}, fmt.Errorf("objectstore: rewind spool: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(checksum),
		Body:          tmp,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return domain.RawFileRef{}, fmt.Errorf("objectstore: put object %q: %w", checksum, err)
	}
	return domain.RawFileRef{FileID: checksum, Checksum: checksum}, nil
}

// putMultipart uploads the spooled file in fixed-size parts, streaming each
// part with a section reader so no part is ever buffered whole.
func (s *S3Store) putMultipart(ctx domain.Context, key, contentType string, f *os.File, size int64) error {
	create, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("objectstore: create multipart upload %q: %w", key, err)
	}

	abort := func() {
		if _, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: create.UploadId,
		}); err != nil {
			slog.Warn("objectstore: abort multipart upload failed",
				slog.String("key", key), slog.Any("error", err))
		}
	}

	var completed []types.CompletedPart
	partNumber := int32(1)
	for offset := int64(0); offset < size; offset += multipartPartSize {
		n := min(multipartPartSize, size-offset)
		out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			UploadId:      create.UploadId,
			PartNumber:    aws.Int32(partNumber),
			Body:          io.NewSectionReader(f, offset, n),
			ContentLength: aws.Int64(n),
		})
		if err != nil {
			abort()
			return fmt.Errorf("objectstore: upload part %d of %q: %w", partNumber, key, err)
		}
		completed = append(completed, types.CompletedPart{
			ETag:       out.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		partNumber++
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        create.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		abort()
		return fmt.Errorf("objectstore: complete multipart upload %q: %w", key, err)
	}
	return nil
}

// OpenRead returns the object body stream for fileID.
func (s *S3Store) OpenRead(ctx domain.Context, fileID string) (domain.ReadSeekCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: objectstore get %q: %v", domain.ErrNotFound, fileID, err)
	}
	return readCloser{out.Body}, nil
}

// Stat returns size/content-type/checksum metadata for fileID without
// fetching its body.
func (s *S3Store) Stat(ctx domain.Context, fileID string) (domain.ObjectStat, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return domain.ObjectStat{}, fmt.Errorf("%w: objectstore head %q: %v", domain.ErrNotFound, fileID, err)
	}
	stat := domain.ObjectStat{Checksum: fileID}
	if out.ContentLength != nil {
		stat.Size = *out.ContentLength
	}
	if out.ContentType != nil {
		stat.ContentType = *out.ContentType
	}
	return stat, nil
}

// readCloser adapts an io.ReadCloser (no Seek) to domain.ReadSeekCloser,
// whose contract in this package only requires Read/Close.
type readCloser struct{ io.ReadCloser }
