// Package blob abstracts content storage for uploaded statement files.
// Objects are write-once: puts create new objects, deletes remove exactly
// the object named by a URL, nothing is mutated in place.
package blob

import "context"

// Store persists and retrieves file content addressed by URL.
type Store interface {
	// Put stores content under the given key and returns its URL.
	Put(ctx context.Context, key, contentType string, content []byte) (string, error)
	// Fetch returns the content addressed by url.
	Fetch(ctx context.Context, url string) ([]byte, error)
	// Delete removes the object addressed by url.
	Delete(ctx context.Context, url string) error
}
