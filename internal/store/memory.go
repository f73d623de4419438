package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. Maps and slices in payloads, typed or not,
// are copied on the way in and out so callers never share them with the
// store. Pointers are kept as is.
type Memory struct {
	mu   sync.Mutex
	docs map[string]map[string]interface{}

	// keyed by "<op> <target>", see FailOn
	failOn map[string]error
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string]map[string]interface{}),
		failOn: make(map[string]error),
	}
}

// FailOn makes op fail with err. op is one of "get", "set" and "delete"
// (target is a document path), "query" (target is a collection path, covers
// List too) or "commit" (target is empty). Pass a nil err to clear it.
func (m *Memory) FailOn(op, target string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op + " " + target
	if err == nil {
		delete(m.failOn, key)
		return
	}
	m.failOn[key] = err
}

func (m *Memory) injected(op, target string) error {
	return m.failOn[op+" "+target]
}

// Get implements Store
func (m *Memory) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(collection, id)
}

func (m *Memory) get(collection, id string) (*Document, error) {
	path, err := docPath(collection, id)
	if err != nil {
		return nil, err
	}
	if err := m.injected("get", path); err != nil {
		return nil, err
	}
	data, ok := m.docs[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return &Document{ID: id, Path: path, Data: copyMap(data)}, nil
}

// List implements Store
func (m *Memory) List(ctx context.Context, collection string) ([]*Document, error) {
	return m.scan(ctx, collection, func(map[string]interface{}) bool { return true })
}

// FindByField implements Store
func (m *Memory) FindByField(ctx context.Context, collection, field string, value interface{}) ([]*Document, error) {
	return m.scan(ctx, collection, func(data map[string]interface{}) bool {
		v, ok := data[field]
		return ok && reflect.DeepEqual(v, value)
	})
}

func (m *Memory) scan(ctx context.Context, collection string, match func(map[string]interface{}) bool) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected("query", collection); err != nil {
		return nil, err
	}

	prefix := collection + "/"
	var docs []*Document
	for path, data := range m.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		id := strings.TrimPrefix(path, prefix)
		if strings.Contains(id, "/") || !match(data) {
			continue
		}
		docs = append(docs, &Document{ID: id, Path: path, Data: copyMap(data)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Set implements Store
func (m *Memory) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set(collection, id, data)
}

func (m *Memory) set(collection, id string, data map[string]interface{}) error {
	path, err := docPath(collection, id)
	if err != nil {
		return err
	}
	if err := m.injected("set", path); err != nil {
		return err
	}
	m.docs[path] = copyMap(data)
	return nil
}

// Delete implements Store
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delete(collection, id)
}

func (m *Memory) delete(collection, id string) error {
	path, err := docPath(collection, id)
	if err != nil {
		return err
	}
	if err := m.injected("delete", path); err != nil {
		return err
	}
	delete(m.docs, path)
	return nil
}

// RunTransaction implements Store. Writes are buffered and applied only when
// fn returns nil, so a failing fn leaves the store untouched.
func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{m: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := m.injected("commit", ""); err != nil {
		return err
	}
	for _, w := range tx.writes {
		if w.data == nil {
			delete(m.docs, w.path)
			continue
		}
		m.docs[w.path] = w.data
	}
	return nil
}

type memoryWrite struct {
	path string
	data map[string]interface{}
}

type memoryTx struct {
	m      *Memory
	writes []memoryWrite
}

var errReadAfterWrite = errors.New("transaction reads must happen before writes")

func (tx *memoryTx) Get(collection, id string) (*Document, error) {
	if len(tx.writes) > 0 {
		return nil, errReadAfterWrite
	}
	return tx.m.get(collection, id)
}

func (tx *memoryTx) Set(collection, id string, data map[string]interface{}) error {
	path, err := docPath(collection, id)
	if err != nil {
		return err
	}
	if err := tx.m.injected("set", path); err != nil {
		return err
	}
	tx.writes = append(tx.writes, memoryWrite{path: path, data: copyMap(data)})
	return nil
}

func (tx *memoryTx) Delete(collection, id string) error {
	path, err := docPath(collection, id)
	if err != nil {
		return err
	}
	if err := tx.m.injected("delete", path); err != nil {
		return err
	}
	tx.writes = append(tx.writes, memoryWrite{path: path})
	return nil
}

// Count returns the number of stored documents
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// Snapshot returns a deep copy of every document keyed by path
func (m *Memory) Snapshot() map[string]map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]map[string]interface{}, len(m.docs))
	for path, data := range m.docs {
		out[path] = copyMap(data)
	}
	return out
}

func docPath(collection, id string) (string, error) {
	if collection == "" || id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("invalid document reference %q/%q", collection, id)
	}
	if strings.Count(collection, "/")%2 != 0 {
		return "", fmt.Errorf("invalid collection path %q", collection)
	}
	return DocPath(collection, id), nil
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	}

	// typed maps and slices, e.g. map[string]bool or []string
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyElem(iter.Value(), rv.Type().Elem()))
		}
		return out.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(copyElem(rv.Index(i), rv.Type().Elem()))
		}
		return out.Interface()
	}
	return v
}

func copyElem(v reflect.Value, typ reflect.Type) reflect.Value {
	c := copyValue(v.Interface())
	if c == nil {
		return reflect.Zero(typ)
	}
	return reflect.ValueOf(c)
}
