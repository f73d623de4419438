package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore is a Store backed by a Firestore client
type Firestore struct {
	client *firestore.Client
}

// NewFirestore wraps an existing client. The caller keeps ownership of it.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (s *Firestore) doc(collection, id string) (*firestore.DocumentRef, error) {
	col := s.client.Collection(collection)
	if col == nil {
		return nil, fmt.Errorf("invalid collection path %q", collection)
	}
	ref := col.Doc(id)
	if ref == nil {
		return nil, fmt.Errorf("invalid document id %q in %s", id, collection)
	}
	return ref, nil
}

func snapshotToDocument(collection string, snap *firestore.DocumentSnapshot) *Document {
	return &Document{
		ID:   snap.Ref.ID,
		Path: DocPath(collection, snap.Ref.ID),
		Data: snap.Data(),
	}
}

func mapGetError(path string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", path, err)
}

// Get implements Store
func (s *Firestore) Get(ctx context.Context, collection, id string) (*Document, error) {
	ref, err := s.doc(collection, id)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, mapGetError(DocPath(collection, id), err)
	}
	return snapshotToDocument(collection, snap), nil
}

// List implements Store
func (s *Firestore) List(ctx context.Context, collection string) ([]*Document, error) {
	col := s.client.Collection(collection)
	if col == nil {
		return nil, fmt.Errorf("invalid collection path %q", collection)
	}
	docs, err := collect(collection, col.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	return docs, nil
}

// FindByField implements Store
func (s *Firestore) FindByField(ctx context.Context, collection, field string, value interface{}) ([]*Document, error) {
	col := s.client.Collection(collection)
	if col == nil {
		return nil, fmt.Errorf("invalid collection path %q", collection)
	}
	docs, err := collect(collection, col.Where(field, "==", value).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s where %s == %v: %w", collection, field, value, err)
	}
	return docs, nil
}

func collect(collection string, iter *firestore.DocumentIterator) ([]*Document, error) {
	defer iter.Stop()

	var docs []*Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, snapshotToDocument(collection, snap))
	}
	return docs, nil
}

// Set implements Store
func (s *Firestore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	ref, err := s.doc(collection, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, data); err != nil {
		return fmt.Errorf("failed to set %s: %w", DocPath(collection, id), err)
	}
	return nil
}

// Delete implements Store
func (s *Firestore) Delete(ctx context.Context, collection, id string) error {
	ref, err := s.doc(collection, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %w", DocPath(collection, id), err)
	}
	return nil
}

// RunTransaction implements Store. Firestore may call fn more than once on
// contention, so fn must not have side effects outside tx.
func (s *Firestore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{s: s, tx: tx})
	})
}

type firestoreTx struct {
	s  *Firestore
	tx *firestore.Transaction
}

func (t *firestoreTx) Get(collection, id string) (*Document, error) {
	ref, err := t.s.doc(collection, id)
	if err != nil {
		return nil, err
	}
	snap, err := t.tx.Get(ref)
	if err != nil {
		return nil, mapGetError(DocPath(collection, id), err)
	}
	return snapshotToDocument(collection, snap), nil
}

func (t *firestoreTx) Set(collection, id string, data map[string]interface{}) error {
	ref, err := t.s.doc(collection, id)
	if err != nil {
		return err
	}
	return t.tx.Set(ref, data)
}

func (t *firestoreTx) Delete(collection, id string) error {
	ref, err := t.s.doc(collection, id)
	if err != nil {
		return err
	}
	return t.tx.Delete(ref)
}
