package port

import (
	"context"
	"io"
)

// ReceiptStorage stores receipt files under opaque slash-separated references
// such as "receipts/12/<uuid>.png". References never leave the storage root.
type ReceiptStorage interface {
	Save(ctx context.Context, ref string, content io.Reader) (int64, error)
	Read(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) bool
	Delete(ctx context.Context, ref string) error
}
