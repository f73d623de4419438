// Package store is the small data-access surface shared by the admin tools:
// point reads, equality queries, full-document writes, deletes and
// transactions over slash-separated collection paths such as "users" or
// "clients/acme/config".
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist
var ErrNotFound = errors.New("document not found")

// Document is a snapshot of a stored document
type Document struct {
	ID   string
	Path string
	Data map[string]interface{}
}

// Store is implemented by the Firestore and in-memory backends
type Store interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// List returns every document of the collection, ordered by ID.
	List(ctx context.Context, collection string) ([]*Document, error)

	// FindByField returns the documents whose field equals value, ordered by ID.
	FindByField(ctx context.Context, collection, field string, value interface{}) ([]*Document, error)

	// Set replaces the whole document. Fields absent from data are removed.
	Set(ctx context.Context, collection, id string, data map[string]interface{}) error

	// Delete removes the document. Deleting a missing document succeeds.
	Delete(ctx context.Context, collection, id string) error

	// RunTransaction runs fn atomically. All Tx reads must come before writes.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store inside a transaction
type Tx interface {
	Get(collection, id string) (*Document, error)
	Set(collection, id string, data map[string]interface{}) error
	Delete(collection, id string) error
}

// DocPath joins a collection path and a document id
func DocPath(collection, id string) string {
	return collection + "/" + id
}

// Exists reports whether the document exists. Errors other than ErrNotFound
// are returned as is.
func Exists(ctx context.Context, s Store, collection, id string) (bool, error) {
	_, err := s.Get(ctx, collection, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
