package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/clovermart/storefront/internal/domain"
	"github.com/clovermart/storefront/internal/platform/auth"
)

const receiptLinkExpiry = 10 * time.Minute

// ReceiptLinks issues customer-facing download URLs for archived order
// snapshots. Access follows order ownership: the buyer or staff, never
// anonymous callers.
type ReceiptLinks struct {
	client *Client
	bucket string
	prefix string
}

// NewReceiptLinks constructs a receipt link issuer over the archive bucket.
func NewReceiptLinks(client *Client, bucket, prefix string) (*ReceiptLinks, error) {
	if client == nil {
		return nil, errors.New("storage receipts: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage receipts: bucket is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "orders"
	}
	return &ReceiptLinks{client: client, bucket: bucket, prefix: prefix}, nil
}

// ReceiptDownloadURL signs a short-lived link to the order's latest archived
// snapshot. Orders that never finalized have no snapshot to link to.
func (r *ReceiptLinks) ReceiptDownloadURL(ctx context.Context, order domain.Order, identity *auth.Identity) (SignedURLResult, error) {
	if r == nil || r.client == nil {
		return SignedURLResult{}, errors.New("storage receipts: not initialised")
	}
	if !order.Finalized() {
		return SignedURLResult{}, fmt.Errorf("storage receipts: order %s has no receipt yet", order.ID)
	}

	object, err := BuildObjectPath(PurposeOrderLatest, PathParams{
		Prefix:  r.prefix,
		OrderID: order.ID,
	})
	if err != nil {
		return SignedURLResult{}, err
	}

	disposition := fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("order-%d.json", order.OrderNumber))
	return r.client.DownloadURL(ctx, r.bucket, object, DownloadOptions{
		ExpiresIn:    receiptLinkExpiry,
		Disposition:  disposition,
		ResponseType: snapshotContentType,
		CacheControl: "private, max-age=0",
		OwnerID:      order.Customer.UserID,
		Identity:     identity,
	})
}
