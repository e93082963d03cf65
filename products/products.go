// Package products maps user-supplied product references (a bare identifier
// or a store URL) to the product locators the checkout service expects.
// Sources are pluggable; adding a store means registering a new Source, the
// purchase flow itself never changes.
package products

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/chainstore/checkout/types"
)

// Source is one product store the checkout service can buy from.
type Source interface {
	// Name is the registry key and the locator prefix.
	Name() string

	// ValidateIdentifier reports whether id is a well-formed product
	// identifier for this source.
	ValidateIdentifier(id string) bool

	// ExtractIdentifier pulls a product identifier out of a store URL.
	ExtractIdentifier(rawURL string) (string, bool)

	// Locator builds the checkout-service product locator from either a
	// bare identifier or a store URL.
	Locator(input string) (string, error)
}

// Registry holds the known product sources. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// DefaultRegistry returns a registry with every built-in source registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(AmazonSource{})
	return r
}

// Register adds or replaces a source under its name.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Lookup returns the source registered under name.
func (r *Registry) Lookup(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Locator resolves input through the named source. It fails fast with a
// validation error before any remote call is made.
func (r *Registry) Locator(source, input string) (string, error) {
	s, ok := r.Lookup(source)
	if !ok {
		return "", &types.CheckoutError{
			Code:    types.ErrCodeValidationFailed,
			Message: fmt.Sprintf("unknown product source %q", source),
		}
	}
	return s.Locator(input)
}

// AmazonSource resolves Amazon product identifiers (ASINs): ten uppercase
// alphanumeric characters, either given directly or embedded as the last
// matching path segment of a product URL.
type AmazonSource struct{}

func (AmazonSource) Name() string { return "amazon" }

func (AmazonSource) ValidateIdentifier(id string) bool {
	if len(id) != 10 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func (s AmazonSource) ExtractIdentifier(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s.ValidateIdentifier(segments[i]) {
			return segments[i], true
		}
	}
	return "", false
}

func (s AmazonSource) Locator(input string) (string, error) {
	id := strings.TrimSpace(input)
	if !s.ValidateIdentifier(id) {
		extracted, ok := s.ExtractIdentifier(id)
		if !ok {
			return "", &types.CheckoutError{
				Code:    types.ErrCodeValidationFailed,
				Message: fmt.Sprintf("%q is neither an Amazon product id nor a product URL", input),
			}
		}
		id = extracted
	}
	return s.Name() + ":" + id, nil
}
