// Package bucket publishes dictionary tables to an S3 compatible bucket and
// serves them back as the remote dictionary source of the label resolver.
package bucket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/labels"
	"github.com/colonyops/kennel/pkg/kv"
)

// DefaultCacheTTL is how long a downloaded table is reused.
const DefaultCacheTTL = 5 * time.Minute

const objectSuffix = ".json"

// objectAPI is the subset of *s3.Client the source needs.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config locates the bucket.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional; enables S3 compatible stores such as MinIO
	PathStyle       bool
	AccessKeyID     string // optional; falls back to the default credential chain
	SecretAccessKey string
	CacheTTL        time.Duration
}

type table struct {
	records  []entity.Record
	loadedAt time.Time
}

// Source reads and writes dictionary tables stored as one JSON object per
// table: <prefix>/<table>.json holding an array of records.
type Source struct {
	client objectAPI
	bucket string
	prefix string
	ttl    time.Duration
	cache  *kv.Store[string, table]
	log    zerolog.Logger
	now    func() time.Time
}

var _ entity.DictionarySource = (*Source)(nil)

// New creates a Source from cfg using the AWS default config chain.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newSource(client, cfg, log), nil
}

func newSource(client objectAPI, cfg Config, log zerolog.Logger) *Source {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Source{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		ttl:    ttl,
		cache:  kv.New[string, table](),
		log:    log,
		now:    time.Now,
	}
}

func (s *Source) key(name string) string {
	if s.prefix == "" {
		return name + objectSuffix
	}
	return path.Join(s.prefix, name+objectSuffix)
}

// FindDictionaryValue implements entity.DictionarySource. Labels match the
// record slug or its normalized name.
func (s *Source) FindDictionaryValue(ctx context.Context, name string, m entity.Matcher) (*entity.Record, error) {
	if m.ID == "" && m.Label == "" {
		return nil, nil
	}

	records, err := s.Table(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := range records {
		r := records[i]
		switch {
		case m.ID != "" && r.ID == m.ID:
			return &r, nil
		case m.ID == "" && (r.Slug == m.Label || labels.Normalize(r.Name) == m.Label):
			return &r, nil
		}
	}
	return nil, nil
}

// Table returns the published records of a table. Missing tables are empty.
func (s *Source) Table(ctx context.Context, name string) ([]entity.Record, error) {
	if t, ok := s.cache.Get(name); ok && s.now().Sub(t.loadedAt) < s.ttl {
		return t.records, nil
	}

	key := s.key(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			s.log.Debug().Str("table", name).Str("key", key).Msg("dictionary not published")
			s.cache.Set(name, table{loadedAt: s.now()})
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var records []entity.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	s.cache.Set(name, table{records: records, loadedAt: s.now()})
	return records, nil
}

// Publish overwrites the object of a table with records.
func (s *Source) Publish(ctx context.Context, name string, records []entity.Record) error {
	if records == nil {
		records = []entity.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	key := s.key(name)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	s.cache.Delete(name)
	s.log.Info().Str("table", name).Int("records", len(records)).Str("key", key).Msg("published dictionary")
	return nil
}

// Tables lists the published table names.
func (s *Source) Tables(ctx context.Context) ([]string, error) {
	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + "/"
	}

	var (
		names []string
		token *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if strings.Contains(name, "/") || !strings.HasSuffix(name, objectSuffix) {
				continue
			}
			names = append(names, strings.TrimSuffix(name, objectSuffix))
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	slices.Sort(names)
	return names, nil
}
