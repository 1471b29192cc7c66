package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
)

const (
	collectionLinkContents = "link_contents"

	// Only compress payloads larger than this
	compressionThreshold = 1024

	// Crawled pages are a working set, not an archive
	contentTTLDays = 30
)

// LinkContentAdapter implements out.LinkContentRepository using
// MongoDB. Crawled pages are large and schemaless, so they live here
// instead of Postgres.
type LinkContentAdapter struct {
	collection *mongo.Collection
}

// NewLinkContentAdapter creates a new MongoDB link content adapter.
func NewLinkContentAdapter(db *mongo.Database) *LinkContentAdapter {
	return &LinkContentAdapter{
		collection: db.Collection(collectionLinkContents),
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *LinkContentAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "link_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// linkContentDocument represents the MongoDB document structure.
type linkContentDocument struct {
	LinkID int64  `bson:"link_id"`
	URL    string `bson:"url"`

	HTML         []byte `bson:"html"`
	Text         []byte `bson:"text"`
	IsCompressed bool   `bson:"is_compressed"`
	OriginalSize int64  `bson:"original_size"`

	FetchedAt time.Time `bson:"fetched_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// Save upserts the crawled payload for a link.
func (a *LinkContentAdapter) Save(ctx context.Context, content *domain.LinkContent) error {
	html := []byte(content.HTML)
	text := []byte(content.Text)
	originalSize := int64(len(html) + len(text))

	compressed := originalSize > compressionThreshold
	if compressed {
		var err error
		if html, err = compress(html); err != nil {
			return fmt.Errorf("failed to compress html: %w", err)
		}
		if text, err = compress(text); err != nil {
			return fmt.Errorf("failed to compress text: %w", err)
		}
	}

	fetchedAt := content.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	doc := linkContentDocument{
		LinkID:       content.LinkID,
		URL:          content.URL,
		HTML:         html,
		Text:         text,
		IsCompressed: compressed,
		OriginalSize: originalSize,
		FetchedAt:    fetchedAt,
		ExpiresAt:    fetchedAt.AddDate(0, 0, contentTTLDays),
	}

	opts := options.Replace().SetUpsert(true)
	_, err := a.collection.ReplaceOne(ctx, bson.M{"link_id": content.LinkID}, doc, opts)
	return err
}

// GetByLinkID returns the stored payload for a link.
func (a *LinkContentAdapter) GetByLinkID(ctx context.Context, linkID int64) (*domain.LinkContent, error) {
	var doc linkContentDocument
	err := a.collection.FindOne(ctx, bson.M{"link_id": linkID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, out.ErrNotFound
		}
		return nil, err
	}

	html, text := doc.HTML, doc.Text
	if doc.IsCompressed {
		if html, err = decompress(html); err != nil {
			return nil, fmt.Errorf("failed to decompress html: %w", err)
		}
		if text, err = decompress(text); err != nil {
			return nil, fmt.Errorf("failed to decompress text: %w", err)
		}
	}

	return &domain.LinkContent{
		LinkID:    doc.LinkID,
		URL:       doc.URL,
		HTML:      string(html),
		Text:      string(text),
		FetchedAt: doc.FetchedAt,
	}, nil
}

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

var _ out.LinkContentRepository = (*LinkContentAdapter)(nil)
