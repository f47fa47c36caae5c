package imap

import (
	"bytes"
	"context"
	"io"

	"github.com/emersion/go-smtp"
	"github.com/miolini/datacounter"
	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/lib/auth"
	"git.sr.ht/~rjarry/mailbackend/lib/rfc822"
	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

// Transport submits messages over SMTP, one session per message.
type Transport struct {
	endpoint
	log log.Logger
}

func newTransport(
	acct backend.Account, s models.ServerSettings, trust backend.TrustPolicy,
) (*Transport, error) {
	e, err := newEndpoint(acct, s, trust, 465, 587)
	if err != nil {
		return nil, err
	}
	return &Transport{endpoint: e, log: log.NewLogger(acct.Name(), 2)}, nil
}

func (t *Transport) Settings() models.ServerSettings {
	return t.settings.Clone()
}

func (t *Transport) connect(ctx context.Context) (*smtp.Client, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	c, err := smtp.NewClient(conn, t.settings.Host)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "smtp.NewClient")
	}
	if domain, ok := t.settings.Param("domain"); ok && domain != "" {
		if err := c.Hello(domain); err != nil {
			c.Close()
			return nil, errors.Wrap(err, "Hello")
		}
	}
	if t.settings.Security == models.SecurityStartTLS {
		if err := c.StartTLS(t.tls); err != nil {
			c.Close()
			return nil, errors.Wrap(err, "StartTLS")
		}
	}
	saslClient, err := auth.NewSaslClient(ctx, t.settings, t.account)
	if err != nil {
		c.Close()
		return nil, err
	}
	if saslClient != nil {
		if err := c.Auth(saslClient); err != nil {
			c.Close()
			return nil, errors.Wrap(err, "conn.Auth")
		}
	}
	return c, nil
}

func (t *Transport) CheckSettings(ctx context.Context) error {
	c, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

func (t *Transport) Send(ctx context.Context, msg io.Reader) error {
	raw, err := io.ReadAll(msg)
	if err != nil {
		return err
	}
	env, err := rfc822.Submission(raw)
	if err != nil {
		return err
	}
	if env.From == nil || env.From.Address == "" {
		return errors.New("message has no From address")
	}

	c, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(env.From.Address, nil); err != nil {
		return errors.Wrap(err, "conn.Mail")
	}
	for _, rcpt := range env.Addresses() {
		if err := c.Rcpt(rcpt); err != nil {
			return errors.Wrap(err, "conn.Rcpt")
		}
	}
	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "conn.Data")
	}
	counter := datacounter.NewWriterCounter(w)
	if _, err := io.Copy(counter, rfc822.NewCRLFReader(bytes.NewReader(raw))); err != nil {
		w.Close()
		return errors.Wrap(err, "write")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "conn.Data")
	}
	t.log.Debugf("sent %d bytes to %d recipients", counter.Count(), len(env.Recipients))
	return c.Quit()
}

func (t *Transport) Close() error {
	return nil
}
