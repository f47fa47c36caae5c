package backend

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Registry maps protocol schemes to their factory. It is built once at
// startup and never modified afterwards.
type Registry struct {
	byScheme    map[string]Factory
	byTransport map[string]Factory
}

func NewRegistry(factories ...Factory) (*Registry, error) {
	r := &Registry{
		byScheme:    make(map[string]Factory, len(factories)),
		byTransport: make(map[string]Factory, len(factories)),
	}
	for _, f := range factories {
		scheme := f.Scheme()
		if scheme == "" {
			return nil, errors.New("backend factory without scheme")
		}
		if _, dup := r.byScheme[scheme]; dup {
			return nil, fmt.Errorf("duplicate backend scheme %q", scheme)
		}
		r.byScheme[scheme] = f

		prefix := f.TransportURIPrefix()
		if prefix == "" {
			return nil, fmt.Errorf("%s: backend factory without transport prefix", scheme)
		}
		if _, dup := r.byTransport[prefix]; dup {
			return nil, fmt.Errorf("duplicate transport prefix %q", prefix)
		}
		r.byTransport[prefix] = f
	}
	return r, nil
}

func (r *Registry) Lookup(scheme string) (Factory, error) {
	f, ok := r.byScheme[scheme]
	if !ok {
		return nil, &UnknownSchemeError{Scheme: scheme}
	}
	return f, nil
}

// Schemes returns the registered schemes, sorted.
func (r *Registry) Schemes() []string {
	schemes := make([]string, 0, len(r.byScheme))
	for s := range r.byScheme {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

func uriScheme(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", &MalformedSettingsError{URI: redactURI(uri), Err: unwrapURLError(err)}
	}
	if u.Scheme == "" {
		return "", malformed(uri, "missing scheme")
	}
	return BaseScheme(u.Scheme), nil
}

// ForStoreURI returns the factory owning the scheme of a store URI.
func (r *Registry) ForStoreURI(uri string) (Factory, error) {
	scheme, err := uriScheme(uri)
	if err != nil {
		return nil, err
	}
	return r.Lookup(scheme)
}

// ForTransportURI returns the factory whose transport prefix matches the
// scheme of a transport URI.
func (r *Registry) ForTransportURI(uri string) (Factory, error) {
	scheme, err := uriScheme(uri)
	if err != nil {
		return nil, err
	}
	f, ok := r.byTransport[scheme]
	if !ok {
		return nil, &UnknownSchemeError{Scheme: scheme}
	}
	return f, nil
}

// CreateBackend dispatches on the scheme of the account's store URI.
func (r *Registry) CreateBackend(acct Account) (*Backend, error) {
	f, err := r.ForStoreURI(acct.StoreURI())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", acct.Name(), err)
	}
	return f.CreateBackend(acct)
}
