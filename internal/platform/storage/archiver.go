package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	domain "github.com/clovermart/storefront/internal/domain"
)

const snapshotContentType = "application/json"

// ObjectStore abstracts the blob operations the archiver needs so tests can
// run without a live bucket.
type ObjectStore interface {
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error
	CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error
}

// GCSStore implements ObjectStore on top of a Cloud Storage client.
type GCSStore struct {
	client *gcs.Client
	copier *Copier
}

// NewGCSStore constructs a store backed by the provided Cloud Storage client.
func NewGCSStore(client *gcs.Client) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("storage store: client is required")
	}
	copier, err := NewCopier(client)
	if err != nil {
		return nil, err
	}
	return &GCSStore{client: client, copier: copier}, nil
}

// WriteObject uploads data to the named object, replacing any existing content.
func (s *GCSStore) WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if s == nil || s.client == nil {
		return errors.New("storage store: client is not initialised")
	}
	writer := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage store: write object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("storage store: close object %s: %w", object, err)
	}
	return nil
}

// CopyObject copies an object between locations within Cloud Storage.
func (s *GCSStore) CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error {
	if s == nil {
		return errors.New("storage store: client is not initialised")
	}
	return s.copier.CopyObject(ctx, sourceBucket, sourceObject, destBucket, destObject)
}

// ArchiverConfig bundles collaborators for NewArchiver.
type ArchiverConfig struct {
	Store  ObjectStore
	Bucket string
	Prefix string
	Clock  func() time.Time
}

// Archiver persists immutable JSON snapshots of finalized orders. Each
// finalization writes a timestamped snapshot and refreshes the latest.json
// pointer that receipt downloads are signed against.
type Archiver struct {
	store   ObjectStore
	bucket  string
	prefix  string
	marshal func(any) ([]byte, error)
	now     func() time.Time
}

// NewArchiver validates the configuration and returns an Archiver.
func NewArchiver(cfg ArchiverConfig) (*Archiver, error) {
	if cfg.Store == nil {
		return nil, errors.New("storage archiver: object store is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("storage archiver: bucket is required")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "orders"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Archiver{
		store:   cfg.Store,
		bucket:  bucket,
		prefix:  prefix,
		marshal: json.Marshal,
		now: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

type orderSnapshot struct {
	ID            string            `json:"id"`
	OrderNumber   int64             `json:"orderNumber"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"paymentStatus"`
	PaymentMethod string            `json:"paymentMethod"`
	PromoCode     string            `json:"promoCode,omitempty"`
	Customer      snapshotCustomer  `json:"customer"`
	ShippingTo    snapshotAddress   `json:"shippingTo"`
	Lines         []snapshotLine    `json:"lines"`
	Totals        snapshotTotals    `json:"totals"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	FinalizedAt   *time.Time        `json:"finalizedAt,omitempty"`
	ArchivedAt    time.Time         `json:"archivedAt"`
}

type snapshotCustomer struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

type snapshotAddress struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type snapshotLine struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

type snapshotTotals struct {
	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

// ArchiveFinalizedOrder writes the order snapshot and updates the latest
// pointer. The snapshot name carries the archive timestamp so repeated
// archive attempts never overwrite history.
func (a *Archiver) ArchiveFinalizedOrder(ctx context.Context, order domain.Order) error {
	if a == nil || a.store == nil {
		return errors.New("storage archiver: not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("storage archiver: order id is required")
	}

	archivedAt := a.now()
	snapshot := orderSnapshot{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		PromoCode:     order.PromoCode,
		Customer: snapshotCustomer{
			UserID: order.Customer.UserID,
			Name:   order.Customer.Name,
			Email:  order.Customer.Email,
			Phone:  order.Customer.Phone,
		},
		ShippingTo: snapshotAddress{
			Name:       order.ShippingTo.Name,
			Line1:      order.ShippingTo.Line1,
			Line2:      order.ShippingTo.Line2,
			City:       order.ShippingTo.City,
			State:      order.ShippingTo.State,
			PostalCode: order.ShippingTo.PostalCode,
			Country:    order.ShippingTo.Country,
			Phone:      order.ShippingTo.Phone,
		},
		Totals: snapshotTotals{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Total:    order.Totals.Total,
			Currency: order.Totals.Currency,
		},
		Metadata:    order.Metadata,
		CreatedAt:   order.CreatedAt,
		FinalizedAt: order.FinalizedAt,
		ArchivedAt:  archivedAt,
	}
	for _, line := range order.Lines {
		snapshot.Lines = append(snapshot.Lines, snapshotLine{
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}

	data, err := a.marshal(snapshot)
	if err != nil {
		return fmt.Errorf("storage archiver: marshal order %s: %w", order.ID, err)
	}

	fileName := archivedAt.Format("20060102T150405.000000000Z") + ".json"
	snapshotPath, err := BuildObjectPath(PurposeOrderSnapshot, PathParams{
		Prefix:   a.prefix,
		OrderID:  order.ID,
		FileName: fileName,
	})
	if err != nil {
		return err
	}
	latestPath, err := BuildObjectPath(PurposeOrderLatest, PathParams{
		Prefix:  a.prefix,
		OrderID: order.ID,
	})
	if err != nil {
		return err
	}

	if err := a.store.WriteObject(ctx, a.bucket, snapshotPath, snapshotContentType, data); err != nil {
		return err
	}
	if err := a.store.CopyObject(ctx, a.bucket, snapshotPath, a.bucket, latestPath); err != nil {
		return fmt.Errorf("storage archiver: refresh latest pointer for %s: %w", order.ID, err)
	}
	return nil
}
