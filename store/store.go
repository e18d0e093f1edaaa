// Package store defines the durable key-value record store the client persists its
// session, saved server list and settings into.
//
// Writes are staged with Set/Delete and become durable on Save, mirroring a settings
// file that is edited in memory and flushed as a unit.
package store

import (
	"context"
	"encoding/json"
	"strings"

	clienterrors "github.com/jrsteele09/go-access-client/internal/errors"
	"github.com/pkg/errors"
)

var (
	ErrInvalidKey = clienterrors.ErrInvalidKey
	ErrClosed     = clienterrors.ErrStoreClosed
)

// Store is a JSON-valued key-value store with an explicit flush.
type Store interface {
	// Get decodes the value stored at key into dst. It reports false when the key is absent.
	Get(ctx context.Context, key string, dst any) (bool, error)

	// Set stages value (JSON encoded) at key.
	Set(ctx context.Context, key string, value any) error

	// Delete stages removal of key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Save flushes staged writes to the durable medium.
	Save(ctx context.Context) error
}

// Put sets key and flushes in one step. Callers that own a record use it to write through.
func Put(ctx context.Context, s Store, key string, value any) error {
	if err := s.Set(ctx, key, value); err != nil {
		return errors.Wrap(err, "store.Put Set")
	}
	if err := s.Save(ctx); err != nil {
		return errors.Wrap(err, "store.Put Save")
	}
	return nil
}

// Remove deletes key and flushes in one step.
func Remove(ctx context.Context, s Store, key string) error {
	if err := s.Delete(ctx, key); err != nil {
		return errors.Wrap(err, "store.Remove Delete")
	}
	if err := s.Save(ctx); err != nil {
		return errors.Wrap(err, "store.Remove Save")
	}
	return nil
}

// CheckKey rejects blank keys.
func CheckKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}

// Encode marshals a value for storage.
func Encode(key string, value any) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %q", key)
	}
	return b, nil
}

// Decode unmarshals a stored value into dst.
func Decode(key string, raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Wrapf(err, "decode %q", key)
	}
	return nil
}
