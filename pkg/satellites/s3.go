package satellites

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"authbridge/pkg/config"
)

// ObjectAPI is the part of *s3.Client the store needs.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from config. Static credentials are used
// when both keys are set (MinIO, local stacks); otherwise the default AWS
// credential chain applies.
func NewS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	}), nil
}

// S3Store keeps the satellites document as one JSON object. Edits are
// read-modify-write and serialized within the process only.
type S3Store struct {
	api    ObjectAPI
	bucket string
	key    string
	log    *zap.SugaredLogger
	now    func() time.Time

	mu sync.Mutex
}

func NewS3Store(api ObjectAPI, bucket, key string, log *zap.SugaredLogger) *S3Store {
	return &S3Store{api: api, bucket: bucket, key: key, log: log, now: time.Now}
}

func (s *S3Store) Name() string { return "s3://" + s.bucket + "/" + s.key }

// Load fetches and parses the document. A missing object yields no records.
func (s *S3Store) Load(ctx context.Context) ([]Record, error) {
	data, err := s.fetch(ctx)
	if err != nil {
		return nil, &ConfigLoadError{Source: s.Name(), Err: err}
	}
	if data == nil {
		return nil, nil
	}
	recs, err := ParseDocument(data, true, s.log)
	if err != nil {
		return nil, &ConfigLoadError{Source: s.Name(), Err: err}
	}
	return recs, nil
}

// Publish replaces the stored document.
func (s *S3Store) Publish(ctx context.Context, doc Document) error {
	if doc.LastUpdated == "" {
		doc.LastUpdated = s.now().UTC().Format(time.RFC3339)
	}
	if doc.Satellites == nil {
		doc.Satellites = []Record{}
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode satellites document: %w", err)
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	s.log.Infow("published satellites document", "bucket", s.bucket, "key", s.key, "count", len(doc.Satellites))
	return nil
}

func (s *S3Store) Upsert(ctx context.Context, r Record) error {
	norm, err := Normalize(r)
	if err != nil {
		return err
	}
	return s.edit(ctx, func(recs []Record) ([]Record, error) {
		for i := range recs {
			if recs[i].ID == norm.ID {
				if norm.AddedDate == "" {
					norm.AddedDate = recs[i].AddedDate
				}
				recs[i] = norm
				return recs, nil
			}
		}
		if norm.AddedDate == "" {
			norm.AddedDate = s.now().UTC().Format(time.RFC3339)
		}
		return append(recs, norm), nil
	})
}

func (s *S3Store) Disable(ctx context.Context, id string) error {
	return s.edit(ctx, func(recs []Record) ([]Record, error) {
		for i := range recs {
			if recs[i].ID == id {
				recs[i].Enabled = false
				return recs, nil
			}
		}
		return nil, ErrNotFound
	})
}

func (s *S3Store) edit(ctx context.Context, fn func([]Record) ([]Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	doc := Document{Version: "1"}
	if data != nil {
		var head struct {
			Version string `json:"version"`
		}
		if json.Unmarshal(data, &head) == nil && head.Version != "" {
			doc.Version = head.Version
		}
		if doc.Satellites, err = ParseDocument(data, true, s.log); err != nil {
			return err
		}
	}
	if doc.Satellites, err = fn(doc.Satellites); err != nil {
		return err
	}
	return s.Publish(ctx, doc)
}

// fetch returns nil, nil when the object does not exist.
func (s *S3Store) fetch(ctx context.Context) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return data, nil
}
