package rfc822

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"git.sr.ht/~rjarry/mailbackend/log"
)

// RFC 1123Z regexp
var dateRe = regexp.MustCompile(`(((Mon|Tue|Wed|Thu|Fri|Sat|Sun))[,]?\s[0-9]{1,2})\s` +
	`(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s` +
	`([0-9]{4})\s([0-9]{2}):([0-9]{2})(:([0-9]{2}))?\s([\+|\-][0-9]{4})`)

var ErrNoRecipients = errors.New("message has no recipients")

// Envelope is what a transport needs to know about an outgoing message.
type Envelope struct {
	From       *mail.Address
	Date       time.Time
	Recipients []*mail.Address
}

// Addresses returns the bare recipient addresses.
func (e *Envelope) Addresses() []string {
	addrs := make([]string, 0, len(e.Recipients))
	for _, rcpt := range e.Recipients {
		addrs = append(addrs, rcpt.Address)
	}
	return addrs
}

// ReadEnvelope parses the header of a raw message. Missing or broken Date
// and From headers are not errors, the zero values are left in place.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	entity, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}
	h := &mail.Header{Header: entity.Header}
	env := &Envelope{}
	if from := parseAddressList(h, "from"); len(from) > 0 {
		env.From = from[0]
	}
	if date, err := parseDate(h); err == nil {
		env.Date = date
	}
	for _, key := range []string{"to", "cc", "bcc"} {
		env.Recipients = append(env.Recipients, parseAddressList(h, key)...)
	}
	return env, nil
}

// Submission is ReadEnvelope for messages about to be sent: it fails
// unless there is at least one recipient.
func Submission(raw []byte) (*Envelope, error) {
	env, err := ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	for _, rcpt := range env.Recipients {
		if rcpt.Address == "" {
			return nil, fmt.Errorf("invalid recipient %q", rcpt.Name)
		}
	}
	if len(env.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	return env, nil
}

// If the date is formatted like ...... -0500 (EST), parser takes the EST part
// and ignores the numeric offset. Then it might easily fail to guess what EST
// means unless the proper locale is loaded. This function checks that, so such
// time values can be safely ignored
func isDateOK(t time.Time) bool {
	name, offset := t.Zone()
	if offset != 0 {
		return true
	}
	return name == "UTC" || name == "GMT" || name == ""
}

// parseDate tries the Date header first and then the last Received header.
func parseDate(h *mail.Header) (time.Time, error) {
	bestDate := time.Time{}

	t, err := h.Date()
	if err == nil && !t.IsZero() {
		if isDateOK(t) {
			return t, nil
		}
		bestDate = t
	}

	t, err = parseReceivedHeader(h)
	if err == nil {
		if isDateOK(t) {
			return t, nil
		}
		bestDate = t
	}
	if !bestDate.IsZero() {
		return bestDate, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %s", h.Get("date"))
}

func parseReceivedHeader(h *mail.Header) (time.Time, error) {
	guess, err := h.Text("received")
	if err != nil {
		return time.Time{}, fmt.Errorf("received header not parseable: %w",
			err)
	}
	return time.Parse(time.RFC1123Z, dateRe.FindString(guess))
}

func parseAddressList(h *mail.Header, key string) []*mail.Address {
	addrs, err := h.AddressList(key)
	if len(addrs) == 0 {
		// Only consider the error if the returned address list is empty
		// Sometimes, we get a list of addresses and unknown charset
		// errors which are not fatal.
		if val := h.Get(key); val != "" {
			if err != nil {
				log.Errorf("%s: %s: %v", key, val, err)
			}
			return []*mail.Address{{Name: val}}
		}
		return nil
	}
	for _, addr := range addrs {
		// Handle invalid headers with quoted *AND* encoded names
		if strings.HasPrefix(addr.Name, "=?") && strings.HasSuffix(addr.Name, "?=") {
			d := mime.WordDecoder{CharsetReader: message.CharsetReader}
			addr.Name, _ = d.DecodeHeader(addr.Name)
		}
	}
	return addrs
}

// NewCRLFReader returns a reader with CRLF line endings
func NewCRLFReader(r io.Reader) io.Reader {
	var buf bytes.Buffer
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		buf.WriteString(scanner.Text() + "\r\n")
	}
	return &buf
}

// ReadMessage is a wrapper for the message.Read function to read a message
// from r. If an unknown charset is encountered, the error is logged but a nil
// error is returned since the entity object can still be read.
func ReadMessage(r io.Reader) (*message.Entity, error) {
	entity, err := message.Read(r)
	if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
		log.Warnf("%v", err)
	} else if err != nil {
		return nil, fmt.Errorf("could not read message: %w", err)
	}
	return entity, nil
}
