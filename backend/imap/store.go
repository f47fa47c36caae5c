package imap

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/lib/auth"
	"git.sr.ht/~rjarry/mailbackend/lib/rfc822"
	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

// Store opens a new IMAP session for every operation.
type Store struct {
	endpoint
	drafts backend.FolderProvider
	log    log.Logger
}

func newStore(
	acct backend.Account, s models.ServerSettings,
	trust backend.TrustPolicy, drafts backend.FolderProvider,
) (*Store, error) {
	e, err := newEndpoint(acct, s, trust, 993, 143)
	if err != nil {
		return nil, err
	}
	return &Store{endpoint: e, drafts: drafts, log: log.NewLogger(acct.Name(), 2)}, nil
}

func (s *Store) Settings() models.ServerSettings {
	return s.settings.Clone()
}

// connect returns a client in the authenticated state.
func (s *Store) connect(ctx context.Context) (*client.Client, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "client.New")
	}
	c.ErrorLog = log.ErrorLogger()

	if s.settings.Security == models.SecurityStartTLS {
		if err := c.StartTLS(s.tls); err != nil {
			c.Terminate()
			return nil, errors.Wrap(err, "StartTLS")
		}
	}

	if s.settings.Auth == models.AuthPlain {
		err = c.Login(s.settings.Username, s.settings.Password)
	} else {
		saslClient, serr := auth.NewSaslClient(ctx, s.settings, s.account)
		if serr != nil {
			c.Terminate()
			return nil, serr
		}
		err = c.Authenticate(saslClient)
	}
	if err != nil {
		c.Terminate()
		return nil, errors.Wrap(err, "login")
	}
	s.log.Tracef("logged in to %s", s.addr)
	return c, nil
}

func (s *Store) logout(c *client.Client) {
	if err := c.Logout(); err != nil {
		s.log.Debugf("logout: %v", err)
	}
}

func (s *Store) CheckSettings(ctx context.Context) error {
	c, err := s.connect(ctx)
	if err != nil {
		return err
	}
	s.logout(c)
	return nil
}

// SaveDraft appends msg to the drafts folder with the \Draft and \Seen
// flags. Without UIDPLUS there is no handle on the new message, so the
// returned identifier is the folder name.
func (s *Store) SaveDraft(ctx context.Context, msg io.Reader) (string, error) {
	folder, err := s.drafts()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rfc822.NewCRLFReader(msg)); err != nil {
		return "", err
	}
	c, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	defer s.logout(c)

	flags := []string{imap.DraftFlag, imap.SeenFlag}
	if err := c.Append(folder, flags, time.Now(), &buf); err != nil {
		return "", errors.Wrap(err, "Append")
	}
	s.log.Debugf("saved draft to %s", folder)
	return folder, nil
}

func (s *Store) Close() error {
	return nil
}
