// Package backup stores point-in-time snapshots of node collections in an
// S3-compatible bucket.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"

	"github.com/Paintersrp/lifelog/internal/docstore"
	"github.com/Paintersrp/lifelog/internal/ngram"
	"github.com/Paintersrp/lifelog/internal/tree"
)

// ErrNotConfigured is returned when no bucket is set.
var ErrNotConfigured = errors.New("backup: bucket not configured")

// Options locates the bucket. Endpoint and the static keys are optional and
// exist for S3-compatible services such as MinIO.
type Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Snapshot is the uploaded document.
type Snapshot struct {
	Collection string     `json:"collection"`
	CreatedAt  time.Time  `json:"createdAt"`
	Documents  []Document `json:"documents"`
}

// Document is one stored document inside a snapshot.
type Document struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type downloader interface {
	Download(ctx context.Context, w io.WriterAt, in *s3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error)
}

type lister interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 saves and restores collection snapshots.
type S3 struct {
	store      docstore.Store
	bucket     string
	prefix     string
	uploader   uploader
	downloader downloader
	lister     lister
	logger     *slog.Logger
	now        func() time.Time
}

// NewS3 loads the default AWS configuration, overridden by opts.
func NewS3(ctx context.Context, store docstore.Store, opts Options, logger *slog.Logger) (*S3, error) {
	if opts.Bucket == "" {
		return nil, ErrNotConfigured
	}

	loaders := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loaders = append(loaders, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("backup: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3(store, opts, manager.NewUploader(client), manager.NewDownloader(client), client, logger), nil
}

func newS3(store docstore.Store, opts Options, up uploader, down downloader, ls lister, logger *slog.Logger) *S3 {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3{
		store:      store,
		bucket:     opts.Bucket,
		prefix:     strings.Trim(opts.Prefix, "/"),
		uploader:   up,
		downloader: down,
		lister:     ls,
		logger:     logger,
		now:        time.Now,
	}
}

func (b *S3) collectionPrefix(collection string) string {
	return path.Join(b.prefix, collection) + "/"
}

// Save uploads the current contents of collection and returns the object
// key.
func (b *S3) Save(ctx context.Context, collection string) (string, error) {
	docs, err := b.store.Find(ctx, docstore.Query{Collection: collection})
	if err != nil {
		return "", fmt.Errorf("backup: read %s: %w", collection, err)
	}

	snap := Snapshot{Collection: collection, CreatedAt: b.now().UTC(), Documents: make([]Document, len(docs))}
	for i, d := range docs {
		snap.Documents[i] = Document{ID: d.ID, Data: json.RawMessage(d.Data)}
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("backup: encode %s: %w", collection, err)
	}

	key := b.collectionPrefix(collection) + snap.CreatedAt.Format(time.RFC3339) + ".json"
	_, err = b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("backup: upload %s: %w", key, err)
	}

	b.logger.Info("backup saved", "collection", collection, "key", key, "documents", len(docs))
	return key, nil
}

// List returns the snapshot keys for collection, newest first.
func (b *S3) List(ctx context.Context, collection string) ([]string, error) {
	keys := make([]string, 0)
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.collectionPrefix(collection)),
	}
	for {
		out, err := b.lister.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("backup: list %s: %w", collection, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		in.ContinuationToken = out.NextContinuationToken
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

// Restore replaces the snapshot's collection with the snapshot contents and
// rebuilds the collection's n-gram index entries, all in one batch.
func (b *S3) Restore(ctx context.Context, key string) (Snapshot, error) {
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := b.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return Snapshot{}, fmt.Errorf("backup: download %s: %w", key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("backup: decode %s: %w", key, err)
	}
	if snap.Collection == "" {
		return Snapshot{}, fmt.Errorf("backup: %s has no collection", key)
	}

	existing, err := b.store.Find(ctx, docstore.Query{Collection: snap.Collection})
	if err != nil {
		return Snapshot{}, fmt.Errorf("backup: read %s: %w", snap.Collection, err)
	}
	entries, err := b.store.Find(ctx, docstore.Query{
		Collection: ngram.Collection,
		Where:      []docstore.Filter{docstore.Where("collection", snap.Collection)},
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("backup: read index: %w", err)
	}

	batch := b.store.Batch()
	for _, d := range existing {
		batch.Delete(snap.Collection, d.ID)
	}
	for _, e := range entries {
		batch.Delete(ngram.Collection, e.ID)
	}
	for _, d := range snap.Documents {
		batch.Set(snap.Collection, docstore.Document{ID: d.ID, Data: []byte(d.Data)})

		n, err := tree.Decode(docstore.Document{ID: d.ID, Data: []byte(d.Data)})
		if err != nil {
			return Snapshot{}, fmt.Errorf("backup: decode node %s: %w", d.ID, err)
		}
		entry, err := docstore.Encode(
			ngram.EntryID(snap.Collection, n.ID),
			ngram.NewEntry(snap.Collection, n.ID, n.Text, n.UpdatedAt),
		)
		if err != nil {
			return Snapshot{}, err
		}
		batch.Set(ngram.Collection, entry)
	}
	if err := batch.Commit(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("backup: restore %s: %w", snap.Collection, err)
	}

	b.logger.Info("backup restored", "collection", snap.Collection, "key", key, "documents", len(snap.Documents))
	return snap, nil
}
