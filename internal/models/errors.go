package models

import "fmt"

// AuthError indicates a bad or expired credential, or an unreachable
// identity provider. Surfaced to callers as unauthorized.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError indicates a malformed request (bad file type, oversized
// upload, missing field). Surfaced as a client error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EmbeddingError indicates a failed call to the external embedding model.
// Not retried by the gateway; callers decide retry policy.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexingError indicates the vector store rejected part or all of a bulk
// write. FailedCount names how many items the backend reported as failed.
type IndexingError struct {
	FailedCount int
	Err         error
}

func (e *IndexingError) Error() string {
	if e.FailedCount > 0 {
		return fmt.Sprintf("indexing failed for %d items: %v", e.FailedCount, e.Err)
	}
	return fmt.Sprintf("indexing failed: %v", e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }

// RetrievalError indicates a failed read against the vector store.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed during %s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// NotFoundError indicates a delete or get against a resource that does not
// exist for the requesting user.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}
