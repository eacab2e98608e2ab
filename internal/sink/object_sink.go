package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fmsync/fmsync/internal/core"
	"github.com/fmsync/fmsync/internal/endpoint"
)

// ObjectSinkConfig configures a MinIO/S3 object sink.
type ObjectSinkConfig struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
	Bucket          string
	Prefix          string
}

// ObjectSink writes each table as a CSV object plus a JSON manifest
// under <prefix>/<table>.csv in a MinIO/S3 bucket.
type ObjectSink struct {
	client *minio.Client
	cfg    *ObjectSinkConfig
}

// NewObjectSink creates the sink and ensures the target bucket exists.
func NewObjectSink(ctx context.Context, cfg *ObjectSinkConfig) (*ObjectSink, error) {
	if cfg == nil || cfg.EndpointURL == "" {
		return nil, core.ConfigErrorf("object sink endpoint URL is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, core.ConfigErrorf("object sink credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, core.ConfigErrorf("object sink bucket is required")
	}

	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, core.ConfigErrorf("invalid object sink endpoint URL: %v", err)
	}
	endpointHost := u.Host
	if endpointHost == "" {
		endpointHost = cfg.EndpointURL
	}
	useSSL := cfg.UseSSL || u.Scheme == "https"

	client, err := minio.New(endpointHost, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, core.Wrap(core.CodeUnreachable, true, err)
	}

	s := &ObjectSink{client: client, cfg: cfg}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ObjectSink) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return classifyObjectError(err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return classifyObjectError(err)
	}
	return nil
}

func (s *ObjectSink) WriteTable(ctx context.Context, spec TableSpec, records []endpoint.Record) error {
	data, err := EncodeCSV(spec.Columns, records)
	if err != nil {
		return err
	}
	if err := s.put(ctx, s.key(spec.Name+".csv"), data, "text/csv"); err != nil {
		return err
	}

	m := manifest{
		Columns:           spec.Columns,
		PrimaryKey:        spec.PrimaryKey,
		Incremental:       spec.Mode == Upsert,
		IncrementalFields: spec.IncrementalFields,
	}
	doc, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.put(ctx, s.key(spec.Name+".csv.manifest"), doc, "application/json")
}

func (s *ObjectSink) Close() error { return nil }

func (s *ObjectSink) key(name string) string {
	if s.cfg.Prefix == "" {
		return name
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + name
}

func (s *ObjectSink) put(ctx context.Context, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classifyObjectError(err)
	}
	return nil
}

// classifyObjectError converts minio-go errors to coded errors.
func classifyObjectError(err error) error {
	if err == nil {
		return nil
	}

	if minioErr, ok := err.(minio.ErrorResponse); ok {
		switch minioErr.Code {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return core.Wrap(core.CodeAuthInvalid, false, err)
		case "NoSuchBucket", "NoSuchKey":
			return core.Wrap(core.CodeNotFound, false, err)
		}
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return core.Wrap(core.CodeUnreachable, true, err)
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline") {
		return core.Wrap(core.CodeUnreachable, true, err)
	}
	return core.Wrap(core.CodeSinkFailed, true, fmt.Errorf("object store write: %w", err))
}
