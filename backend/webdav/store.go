package webdav

import (
	"context"
	"io"

	"github.com/google/uuid"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/models"
)

type Store struct {
	client *client
	drafts backend.FolderProvider
}

func (s *Store) Settings() models.ServerSettings {
	return s.client.settings.Clone()
}

func (s *Store) CheckSettings(ctx context.Context) error {
	return s.client.check(ctx)
}

// SaveDraft uploads msg into the drafts folder under a random name and
// returns the URL of the new resource.
func (s *Store) SaveDraft(ctx context.Context, msg io.Reader) (string, error) {
	folder, err := s.drafts()
	if err != nil {
		return "", err
	}
	target, err := s.client.put(ctx, folder, uuid.NewString()+".eml", msg)
	if err != nil {
		return "", err
	}
	s.client.log.Debugf("saved draft to %s", target)
	return target, nil
}

func (s *Store) Close() error {
	s.client.close()
	return nil
}
