// Package imap pairs an IMAP store with an SMTP transport. Unlike webdav,
// both halves are separate endpoints configured by separate URIs.
package imap

import (
	"fmt"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/models"
)

const (
	Scheme          = "imap"
	TransportScheme = "smtp"
)

var (
	securities = []models.ConnectionSecurity{
		models.SecurityTLS, models.SecurityStartTLS, models.SecurityNone,
	}

	StoreCodec = backend.URICodec{
		Scheme:     Scheme,
		Securities: securities,
		AuthTypes: []models.AuthType{
			models.AuthPlain, models.AuthLogin,
			models.AuthOAuthBearer, models.AuthXOAuth2,
		},
	}
	TransportCodec = backend.URICodec{
		Scheme:     TransportScheme,
		Securities: securities,
		AuthTypes: []models.AuthType{
			models.AuthPlain, models.AuthLogin,
			models.AuthOAuthBearer, models.AuthXOAuth2, models.AuthNone,
		},
	}
)

type Factory struct {
	storage backend.StorageFactory
	trust   backend.TrustPolicy
}

var _ backend.Factory = (*Factory)(nil)

func NewFactory(storage backend.StorageFactory, trust backend.TrustPolicy) *Factory {
	return &Factory{storage: storage, trust: trust}
}

func (f *Factory) Scheme() string { return Scheme }

func (f *Factory) TransportURIPrefix() string { return TransportScheme }

func (f *Factory) SharedEndpoint() bool { return false }

func (f *Factory) CreateBackend(acct backend.Account) (*backend.Backend, error) {
	storeSettings, err := f.DecodeStoreURI(acct.StoreURI())
	if err != nil {
		return nil, err
	}
	transportSettings, err := f.DecodeTransportURI(acct.TransportURI())
	if err != nil {
		return nil, err
	}
	storage, err := f.storage.CreateBackendStorage(acct)
	if err != nil {
		return nil, fmt.Errorf("%s: storage: %w", acct.Name(), err)
	}
	drafts := backend.SpecialFolderProvider(acct, models.DraftsFolder)

	store, err := newStore(acct, storeSettings, f.trust, drafts)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("%s: %w", acct.Name(), err)
	}
	transport, err := newTransport(acct, transportSettings, f.trust)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("%s: %w", acct.Name(), err)
	}
	return backend.New(acct.Name(), storage, store, transport), nil
}

func (f *Factory) DecodeStoreURI(uri string) (models.ServerSettings, error) {
	return StoreCodec.Decode(uri)
}

func (f *Factory) CreateStoreURI(s models.ServerSettings) (string, error) {
	return StoreCodec.Encode(s)
}

func (f *Factory) DecodeTransportURI(uri string) (models.ServerSettings, error) {
	return TransportCodec.Decode(uri)
}

func (f *Factory) CreateTransportURI(s models.ServerSettings) (string, error) {
	return TransportCodec.Encode(s)
}
