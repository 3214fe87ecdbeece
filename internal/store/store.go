// Package store persists serialized entity documents.
//
// A Store maps resource identifiers such as "scenes/opening" to the bytes
// of their entity document. The engine never reads or writes storage
// itself; the service hands documents to a Store on load and save.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store errors.
var (
	// ErrNotFound indicates a resource with no stored document.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidResource indicates a resource identifier that cannot be stored.
	ErrInvalidResource = errors.New("invalid resource identifier")

	// ErrUnknownDriver indicates an unsupported store driver.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Store loads and saves entity documents by resource.
// Implementations are safe for concurrent use.
type Store interface {
	// Load returns the stored document or ErrNotFound.
	Load(ctx context.Context, resource string) ([]byte, error)

	// Save stores data for resource, replacing any previous document.
	Save(ctx context.Context, resource string, data []byte) error

	// Delete removes the document of resource or returns ErrNotFound.
	Delete(ctx context.Context, resource string) error

	// List returns every stored resource in lexical order.
	List(ctx context.Context) ([]string, error)

	// Close releases the store.
	Close() error
}

// Driver names.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverBadger = "badger"
)

// Config selects and configures a store.
type Config struct {
	Driver    string
	Path      string
	RedisAddr string
	RedisDB   int
	KeyPrefix string
	InMemory  bool
}

// Open creates the store cfg describes.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverFile:
		s, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverRedis:
		return NewRedisStore(cfg.RedisAddr, cfg.RedisDB, cfg.KeyPrefix), nil
	case DriverBadger:
		s, err := OpenBadgerStore(BadgerConfig{Path: cfg.Path, InMemory: cfg.InMemory, SyncWrites: !cfg.InMemory})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// ValidateResource checks that resource is a relative, slash-separated
// identifier without empty, "." or ".." segments.
func ValidateResource(resource string) error {
	if resource == "" {
		return fmt.Errorf("%w: empty", ErrInvalidResource)
	}
	if strings.ContainsAny(resource, "\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidResource, resource)
	}
	for _, part := range strings.Split(resource, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidResource, resource)
		}
	}
	return nil
}
