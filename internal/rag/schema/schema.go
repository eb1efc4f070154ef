package schema

// Metadata keys attached to document chunks during loading and ingestion.
const (
	// MetadataKeyFileName is the source file name.
	MetadataKeyFileName = "file_name"
	// MetadataKeyPageLabel is the page number within the source document.
	MetadataKeyPageLabel = "page_label"
	// MetadataKeyDocumentID is the registry id of the uploaded document.
	MetadataKeyDocumentID = "document_id"
	// MetadataKeyUserID is the owning user's subject id.
	MetadataKeyUserID = "user_id"
	// MetadataKeyUploadedAt is the ingestion timestamp in RFC 3339.
	MetadataKeyUploadedAt = "upload_timestamp"
)

// Document is a piece of text moving through the ingestion pipeline: a loaded
// page first, then a chunk of one. It is the primary data carrier between the
// loader, the splitter, and the vector store.
type Document struct {
	// ID uniquely identifies this chunk.
	ID string

	// Text is the chunk content.
	Text string

	// Embedding is the vector representation of Text. Empty until the
	// embedding step runs.
	Embedding []float32

	// Metadata carries source information (file name, page label, owner).
	Metadata map[string]string
}

// CopyMetadata returns a copy of the document's metadata so chunks never
// share the underlying map with their source page.
func (d *Document) CopyMetadata() map[string]string {
	out := make(map[string]string, len(d.Metadata))
	for k, v := range d.Metadata {
		out[k] = v
	}
	return out
}
