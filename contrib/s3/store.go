// Package s3 stores case records and workflow checkpoints in an S3 bucket as
// JSON objects.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-kratos/caseflow"
	"github.com/google/uuid"
)

var _ caseflow.CaseStore = (*CaseStore)(nil)

// API is the subset of the S3 client used by this package.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Option configures the S3 stores.
type Option func(*options)

type options struct {
	prefix string
	now    func() time.Time
	newID  func() string
}

// WithPrefix stores every object under prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = strings.Trim(prefix, "/")
	}
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator sets the case id generator. Defaults to random UUIDs.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		o.newID = newID
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) key(parts ...string) string {
	if o.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{o.prefix}, parts...)...)
}

// bucket wraps the object operations shared by both stores.
type bucket struct {
	name   string
	client API
}

func (b bucket) getJSON(ctx context.Context, key string, v any) error {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (b bucket) putJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// keys lists every object key under prefix in bucket order.
func (b bucket) keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	pages := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, aws.ToString(obj.Key))
		}
	}
	return out, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

// CaseStore implements caseflow.CaseStore with one JSON object per case.
// Updates are read-modify-write and assume a single writer per case.
type CaseStore struct {
	opts   options
	bucket bucket
}

// NewCaseStore creates a CaseStore over an existing client.
func NewCaseStore(name string, client API, opts ...Option) *CaseStore {
	return &CaseStore{
		opts:   newOptions(opts),
		bucket: bucket{name: name, client: client},
	}
}

// NewCaseStoreFromConfig creates a CaseStore with the given S3 bucket and AWS configuration.
func NewCaseStoreFromConfig(name string, cfg aws.Config, opts ...Option) *CaseStore {
	return NewCaseStore(name, s3.NewFromConfig(cfg), opts...)
}

func (s *CaseStore) caseKey(id string) string {
	return s.opts.key("cases", id+".json")
}

// Create stores a new submitted case.
func (s *CaseStore) Create(ctx context.Context, complaint string) (*caseflow.Record, error) {
	complaint = strings.TrimSpace(complaint)
	if complaint == "" {
		return nil, caseflow.ErrEmptyInput
	}
	now := s.opts.now()
	r := &caseflow.Record{
		ID:        s.opts.newID(),
		Complaint: complaint,
		Status:    caseflow.RecordSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.bucket.putJSON(ctx, s.caseKey(r.ID), r); err != nil {
		return nil, err
	}
	return r, nil
}

// MarkRunning moves a case to processing.
func (s *CaseStore) MarkRunning(ctx context.Context, id string) error {
	return s.update(ctx, id, func(r *caseflow.Record) {
		r.Status = caseflow.RecordProcessing
		r.UpdatedAt = s.opts.now()
	})
}

// SaveResult records the final state of a case and closes it.
func (s *CaseStore) SaveResult(ctx context.Context, id string, final map[string]any) error {
	return s.update(ctx, id, func(r *caseflow.Record) {
		r.ApplyResult(final, s.opts.now())
	})
}

// MarkError records a failed run.
func (s *CaseStore) MarkError(ctx context.Context, id string, reason string) error {
	return s.update(ctx, id, func(r *caseflow.Record) {
		r.Status = caseflow.RecordError
		r.Error = reason
		r.UpdatedAt = s.opts.now()
	})
}

// Get loads a case.
func (s *CaseStore) Get(ctx context.Context, id string) (*caseflow.Record, error) {
	var r caseflow.Record
	if err := s.bucket.getJSON(ctx, s.caseKey(id), &r); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", caseflow.ErrCaseNotFound, id)
		}
		return nil, fmt.Errorf("get case %s: %w", id, err)
	}
	return &r, nil
}

// List loads every case, newest first.
func (s *CaseStore) List(ctx context.Context) ([]*caseflow.Record, error) {
	keys, err := s.bucket.keys(ctx, s.opts.key("cases")+"/")
	if err != nil {
		return nil, err
	}
	out := make([]*caseflow.Record, 0, len(keys))
	for _, key := range keys {
		var r caseflow.Record
		if err := s.bucket.getJSON(ctx, key, &r); err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		out = append(out, &r)
	}
	caseflow.SortRecords(out)
	return out, nil
}

func (s *CaseStore) update(ctx context.Context, id string, fn func(*caseflow.Record)) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(r)
	return s.bucket.putJSON(ctx, s.caseKey(id), r)
}
