// Package s3 stores model documents as JSON objects in an S3-compatible
// bucket (AWS S3 or MinIO). Keys are <prefix>/<schema>/<id>.json.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"modelcore/pkg/model"
)

// Compile-time contract assertion.
var _ model.Storage = (*Store)(nil)

// Store implements the storage contract over a single bucket.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
	newID  func() string
}

// Config holds explicit construction parameters (mostly for tests). For
// production we rely primarily on environment variables.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string // optional; enables custom endpoints (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	SessionToken    string // optional
	PathStyle       bool
}

// Environment variables:
//	MODELCORE_S3_BUCKET=<bucket> (required)
//	MODELCORE_S3_PREFIX=<key prefix> (optional)
//	MODELCORE_S3_REGION=<region> (default us-east-1)
//	MODELCORE_S3_ENDPOINT=<url> (optional, for MinIO)
//	MODELCORE_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates an S3 document store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, newID: uuid.NewString}, nil
}

// OpenFromEnv constructs an S3 store from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	bucket := os.Getenv("MODELCORE_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("MODELCORE_S3_BUCKET required for s3 driver")
	}
	cfg := Config{
		Bucket:    bucket,
		Prefix:    os.Getenv("MODELCORE_S3_PREFIX"),
		Region:    os.Getenv("MODELCORE_S3_REGION"),
		Endpoint:  os.Getenv("MODELCORE_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("MODELCORE_S3_PATH_STYLE"), "true"),
	}
	return New(ctx, cfg)
}

func (s *Store) key(m *model.Model, id string) string {
	return path.Join(s.prefix, m.Schema().Name(), id+".json")
}

func (s *Store) put(ctx context.Context, key string, doc map[string]model.Value) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	ct := "application/json"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &ct,
	})
	return err
}

// Insert writes a new document under a generated identity.
func (s *Store) Insert(ctx context.Context, m *model.Model) (map[string]model.Value, error) {
	doc := m.Document()
	id := s.newID()
	doc[m.Schema().Identity()] = id
	if err := s.put(ctx, s.key(m, id), doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Update overwrites the identified document.
func (s *Store) Update(ctx context.Context, m *model.Model) (map[string]model.Value, error) {
	id := identityOf(m)
	doc := m.Document()
	if err := s.put(ctx, s.key(m, id), doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Find loads the identified document.
func (s *Store) Find(ctx context.Context, m *model.Model) (map[string]model.Value, error) {
	id := identityOf(m)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    aws.String(s.key(m, id)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, model.NotFoundError{Collection: m.Schema().Name(), ID: id}
		}
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	var doc map[string]model.Value
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return doc, nil
}

// Remove deletes the identified document. S3 deletes are idempotent, so a
// missing key is not an error.
func (s *Store) Remove(ctx context.Context, m *model.Model) error {
	id := identityOf(m)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    aws.String(s.key(m, id)),
	})
	return err
}

func identityOf(m *model.Model) string {
	id, _ := m.ID()
	switch t := id.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
