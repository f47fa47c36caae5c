package webdav

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/miolini/datacounter"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/lib/rfc822"
	"git.sr.ht/~rjarry/mailbackend/models"
)

// Transport submits messages by storing them as drafts and moving them to
// the Exchange submission URI.
type Transport struct {
	client *client
	drafts backend.FolderProvider
}

func (t *Transport) Settings() models.ServerSettings {
	return t.client.settings.Clone()
}

func (t *Transport) CheckSettings(ctx context.Context) error {
	return t.client.check(ctx)
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
	folder, err := t.drafts()
	if err != nil {
		return err
	}

	counter := datacounter.NewReaderCounter(bytes.NewReader(raw))
	draft, err := t.client.put(ctx, folder, uuid.NewString()+".eml", counter)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if err := t.client.move(ctx, draft, t.client.url(submissionFolder, "")); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	t.client.log.Debugf("sent %d bytes to %d recipients", counter.Count(), len(env.Recipients))
	return nil
}

// Close is a no-op, the shared client belongs to the Store.
func (t *Transport) Close() error {
	return nil
}
