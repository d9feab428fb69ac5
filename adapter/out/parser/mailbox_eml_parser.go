// Package parser reads .eml files into email records.
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

// NoSubject is used when the Subject header is empty.
const NoSubject = "(no subject)"

const extension = ".eml"

// EMLParser implements out.EmailParser for RFC 5322 files.
type EMLParser struct {
	now func() time.Time
}

func NewEMLParser() *EMLParser {
	return &EMLParser{now: time.Now}
}

// ParseFile reads path and returns the record it describes. The record has no
// ID and is not AI processed.
func (p *EMLParser) ParseFile(path string) (*domain.EmailRecord, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != extension {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrParse, domain.ErrUnsupportedFile, ext)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, filepath.Base(path), err)
	}

	email, err := p.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, filepath.Base(path), err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		email.FilePath = abs
	} else {
		email.FilePath = path
	}
	return email, nil
}

// Parse decodes raw message bytes.
func (p *EMLParser) Parse(raw []byte) (*domain.EmailRecord, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}

	sum := sha256.Sum256(raw)
	email := &domain.EmailRecord{
		FileHash: hex.EncodeToString(sum[:]),
		FileSize: int64(len(raw)),
		Tags:     []string{},
	}

	h := mr.Header
	email.Subject = decodeSubject(h)
	email.SenderName, email.Sender = firstAddress(h, "From")
	email.RecipientName, email.Recipient = firstAddress(h, "To")

	if date, err := h.Date(); err == nil && !date.IsZero() {
		email.DateSent = date.UTC()
	} else {
		email.DateSent = p.now().UTC()
	}

	if err := readParts(mr, email); err != nil {
		return nil, err
	}
	email.HasAttachments = email.AttachmentCount > 0
	return email, nil
}

func readParts(mr *mail.Reader, email *domain.EmailRecord) error {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return fmt.Errorf("read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.AttachmentHeader:
			email.AttachmentCount++
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			switch {
			case ct == "text/html" && email.BodyHTML == "":
				body, err := io.ReadAll(part.Body)
				if err != nil {
					return fmt.Errorf("read html body: %w", err)
				}
				email.BodyHTML = string(body)
			case (ct == "text/plain" || ct == "") && email.BodyText == "":
				body, err := io.ReadAll(part.Body)
				if err != nil {
					return fmt.Errorf("read text body: %w", err)
				}
				email.BodyText = string(body)
			}
		}
	}
}

func decodeSubject(h mail.Header) string {
	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return NoSubject
	}
	return subject
}

// firstAddress returns the display name and address of the first entry in
// the header. Unparseable values are returned verbatim as the address.
func firstAddress(h mail.Header, key string) (name, addr string) {
	list, err := h.AddressList(key)
	if err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0].Name), list[0].Address
	}
	raw, _ := h.Text(key)
	if raw == "" {
		raw = h.Get(key)
	}
	return "", strings.TrimSpace(raw)
}

var _ out.EmailParser = (*EMLParser)(nil)
