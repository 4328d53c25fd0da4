// Package memstore defines the backend-agnostic memory contract
// agents read and write through. It specifies trait/capability
// interfaces only; concrete backends (sqlite, redis, in-memory) are
// collaborators outside this module's scope.
package memstore

import (
	"context"
	"regexp"
	"strings"

	"github.com/corvidlabs/gatekeeper/pkg/ident"
)

var memoryKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// Key is a validated memory key: the shared identifier charset
// extended with ':' for namespacing (e.g. "agent:scratch:notes").
type Key string

// ParseKey validates s and returns it as a Key.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return "", &ident.ValidationError{Code: ident.CodeEmpty}
	}
	if strings.TrimSpace(s) != s {
		return "", &ident.ValidationError{Code: ident.CodeLeadingTrailingWhitespace}
	}
	if len(s) > 128 {
		return "", &ident.ValidationError{Code: ident.CodeTooLong, Length: len(s), Max: 128}
	}
	if !memoryKeyPattern.MatchString(s) {
		return "", &ident.ValidationError{Code: ident.CodeInvalidChar, Input: s}
	}
	return Key(s), nil
}

func (k Key) String() string { return string(k) }

// Update is a single key/value write.
type Update struct {
	Key   Key
	Value string
}

// ErrorKind is the closed taxonomy of memory-backend failures.
type ErrorKind string

const (
	ErrNotFound           ErrorKind = "not_found"
	ErrSerialization      ErrorKind = "serialization_error"
	ErrBackendUnavailable ErrorKind = "backend_unavailable"
	ErrTransactionAborted ErrorKind = "transaction_aborted"
)

// Error is the structured error every backend returns.
type Error struct {
	Backend string
	Kind    ErrorKind
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return string(e.Kind) + ": " + e.Details
	}
	return string(e.Kind)
}

// Reader reads validated-key entries. Backends that cannot batch may
// rely on the DefaultLoadMany helper to satisfy load_many in terms of
// single-key Load calls.
type Reader interface {
	Load(ctx context.Context, key Key) (value string, found bool, err error)
	LoadMany(ctx context.Context, keys []Key) (map[Key]string, error)
}

// Writer performs exclusive writes.
type Writer interface {
	Store(ctx context.Context, update Update) error
	StoreMany(ctx context.Context, updates []Update) error
}

// Transactional composes writes atomically: fn either commits every
// write it issues through the provided Writer, or none of them.
type Transactional interface {
	Transaction(ctx context.Context, fn func(w Writer) error) error
}

// Snapshotable extends a backend with atomic, all-or-nothing
// snapshot/restore.
type Snapshotable interface {
	Snapshot(ctx context.Context) (string, error)
	Restore(ctx context.Context, snapshot string) error
}

// DefaultLoadMany implements LoadMany in terms of per-key Load calls,
// for backends that have no native batching.
func DefaultLoadMany(ctx context.Context, r Reader, keys []Key) (map[Key]string, error) {
	out := make(map[Key]string, len(keys))
	for _, k := range keys {
		v, found, err := r.Load(ctx, k)
		if err != nil {
			return nil, err
		}
		if found {
			out[k] = v
		}
	}
	return out, nil
}

// DefaultStoreMany implements StoreMany in terms of per-update Store
// calls, for backends that have no native batching.
func DefaultStoreMany(ctx context.Context, w Writer, updates []Update) error {
	for _, u := range updates {
		if err := w.Store(ctx, u); err != nil {
			return err
		}
	}
	return nil
}
