package interfaces

import (
	"context"

	"ragchat/internal/rag/schema"
)

// Loader reads a source file and converts it into one Document per page.
type Loader interface {
	Load(ctx context.Context, path string) ([]*schema.Document, error)
}

// Splitter splits loaded Documents into smaller chunks.
type Splitter interface {
	Split(ctx context.Context, docs []*schema.Document) ([]*schema.Document, error)
}
