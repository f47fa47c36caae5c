package backend

import (
	"context"
	"crypto/tls"
	"io"

	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

// Account is the read access a factory needs to the configuration of one
// mail account. Implementations must tolerate concurrent calls since
// deferred providers read from it while the configuration may be reloaded.
type Account interface {
	// Stable identifier, used as storage key.
	ID() string
	// Display name, used for logging.
	Name() string
	StoreURI() string
	TransportURI() string
	SpecialFolder(role models.FolderRole) (string, bool)
}

// Store fetches and stores mail on the remote server.
type Store interface {
	Settings() models.ServerSettings
	CheckSettings(ctx context.Context) error
	// SaveDraft uploads msg into the account's drafts folder and returns a
	// protocol specific identifier of the new message.
	SaveDraft(ctx context.Context, msg io.Reader) (string, error)
	Close() error
}

// Transport submits outgoing messages.
type Transport interface {
	Settings() models.ServerSettings
	CheckSettings(ctx context.Context) error
	Send(ctx context.Context, msg io.Reader) error
	Close() error
}

// Storage is the local, durable state kept for one account.
type Storage interface {
	Folders() ([]string, error)
	CreateFolder(name string) error
	DeleteFolder(name string) error
	ExtraString(key string) (string, bool, error)
	SetExtraString(key, value string) error
	SaveMessage(folder string, msg io.Reader) (string, error)
	Close() error
}

type StorageFactory interface {
	CreateBackendStorage(acct Account) (Storage, error)
}

// TrustPolicy decides which server certificates are accepted.
type TrustPolicy interface {
	TLSConfig(host string, port int) *tls.Config
}

// Factory assembles backends for one protocol and owns the layout of its
// settings URIs.
type Factory interface {
	// Scheme is the protocol identifier the factory is registered under.
	Scheme() string
	// TransportURIPrefix is the scheme of the transport settings URIs.
	TransportURIPrefix() string
	// SharedEndpoint reports whether store and transport talk to the same
	// endpoint, in which case the transport URI operations are aliases of
	// the store URI operations.
	SharedEndpoint() bool

	CreateBackend(acct Account) (*Backend, error)

	DecodeStoreURI(uri string) (models.ServerSettings, error)
	CreateStoreURI(s models.ServerSettings) (string, error)
	DecodeTransportURI(uri string) (models.ServerSettings, error)
	CreateTransportURI(s models.ServerSettings) (string, error)
}

// Backend is the assembled client of one account.
type Backend struct {
	Name      string
	Log       log.Logger
	Store     Store
	Transport Transport
	Storage   Storage
}

func New(name string, storage Storage, store Store, transport Transport) *Backend {
	return &Backend{
		Name:      name,
		Log:       log.NewLogger(name, 2),
		Store:     store,
		Transport: transport,
		Storage:   storage,
	}
}

// Close releases the three capabilities and returns the first error.
func (b *Backend) Close() error {
	var first error
	for _, c := range []io.Closer{b.Transport, b.Store, b.Storage} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
