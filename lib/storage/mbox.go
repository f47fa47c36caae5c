package storage

import (
	"bytes"
	"io"
	"time"

	"github.com/emersion/go-mbox"

	"git.sr.ht/~rjarry/mailbackend/lib/rfc822"
)

const unknownSender = "MAILER-DAEMON"

// envelope extracts the mbox "From " line fields from a raw message.
func envelope(raw []byte) (string, time.Time) {
	from, date := unknownSender, time.Now()
	env, err := rfc822.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return from, date
	}
	if env.From != nil && env.From.Address != "" {
		from = env.From.Address
	}
	if !env.Date.IsZero() {
		date = env.Date
	}
	return from, date
}

// ExportMbox writes every message of folder to w in mbox format.
func (s *Storage) ExportMbox(folder string, w io.Writer) error {
	keys, err := s.Messages(folder)
	if err != nil {
		return err
	}
	wc := mbox.NewWriter(w)
	for _, key := range keys {
		r, err := s.OpenMessage(folder, key)
		if err != nil {
			return err
		}
		raw, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return err
		}
		from, date := envelope(raw)
		mw, err := wc.CreateMessage(from, date)
		if err != nil {
			return err
		}
		if _, err := mw.Write(raw); err != nil {
			return err
		}
	}
	return wc.Close()
}
