// Package maildir reads messages from a Maildir tree and prunes old ones.
package maildir

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// Source walks a Maildir root recursively and yields one message per file.
// Files whose name starts with a dot are ignored.
type Source struct {
	root  string
	paths []string
	next  int
	log   zerolog.Logger
}

var _ out.MessageSource = (*Source)(nil)

// NewSource lists the files under root. An unreadable root is a
// configuration error; unreadable subdirectories are skipped with a warning.
func NewSource(root string, log zerolog.Logger) (*Source, error) {
	log = log.With().Str("component", "maildir").Logger()

	info, err := os.Stat(root)
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("cannot read maildir root %s", root)).WithError(err)
	}
	if !info.IsDir() {
		return nil, apperr.ConfigError(fmt.Sprintf("maildir root %s is not a directory", root))
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("cannot read maildir root %s", root)).WithError(err)
	}

	log.Info().Str("root", root).Int("files", len(paths)).Msg("maildir scanned")
	return &Source{root: root, paths: paths, log: log}, nil
}

// Len is the number of files found.
func (s *Source) Len() int { return len(s.paths) }

// Next implements out.MessageSource.
func (s *Source) Next(ctx context.Context) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.next]
	s.next++

	msg, err := ParseFile(path)
	if err != nil {
		return nil, &out.ParseError{Path: path, Err: err}
	}
	return msg, nil
}

// ParseFile reads and parses a single RFC 5322 message. Failures carry
// the PARSE_ERROR code.
func ParseFile(path string) (*domain.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.ParseError(path, err)
	}
	msg, err := Parse(data)
	if err != nil {
		return nil, apperr.ParseError(path, err)
	}
	msg.Path = path
	return msg, nil
}

// Parse parses raw message bytes. The body is the text/plain parts joined
// by blank lines, or the raw body when there are none.
func Parse(data []byte) (*domain.Message, error) {
	m, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}

	msg := &domain.Message{
		Subject: decodeHeader(m.Header.Get("Subject")),
		From:    parseFrom(m.Header.Get("From")),
	}
	if raw := m.Header.Get("Date"); raw != "" {
		if t, err := mail.ParseDate(raw); err == nil {
			msg.Date = &t
		}
	}

	raw, err := io.ReadAll(m.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var p parts
	p.walk(m.Header, raw)
	if len(p.plain) > 0 {
		msg.Body = strings.Join(p.plain, "\n\n")
	} else {
		msg.Body = string(raw)
	}
	msg.Attachments = p.attachments
	return msg, nil
}

// header is the subset of mail.Header and textproto.MIMEHeader used here.
type header interface {
	Get(key string) string
}

type parts struct {
	plain       []string
	attachments []string
}

func (p *parts) walk(h header, body []byte) {
	contentType := h.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
		for {
			part, err := reader.NextRawPart()
			if err != nil {
				return
			}
			content, err := io.ReadAll(part)
			if err != nil {
				return
			}
			p.walk(part.Header, content)
		}
	}

	disposition, dispParams, _ := mime.ParseMediaType(h.Get("Content-Disposition"))
	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}
	if disposition == "attachment" || (filename != "" && !strings.HasPrefix(mediaType, "text/")) {
		p.attachments = append(p.attachments, decodeHeader(filename))
		return
	}

	if mediaType == "text/plain" {
		content := decodeTransfer(body, h.Get("Content-Transfer-Encoding"))
		p.plain = append(p.plain, decodeCharset(content, params["charset"]))
	}
}

func parseFrom(raw string) string {
	if raw == "" {
		return ""
	}
	dec := mime.WordDecoder{CharsetReader: charsetReader}
	parser := mail.AddressParser{WordDecoder: &dec}
	if addr, err := parser.Parse(raw); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(decodeHeader(raw))
}

func decodeHeader(s string) string {
	dec := mime.WordDecoder{CharsetReader: charsetReader}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

func decodeTransfer(data []byte, encoding string) []byte {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		cleaned := bytes.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, data)
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(cleaned)))
		n, err := base64.StdEncoding.Decode(decoded, cleaned)
		if err != nil {
			return data
		}
		return decoded[:n]
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(data)))
		if err != nil {
			return data
		}
		return decoded
	default:
		return data
	}
}

func decodeCharset(data []byte, charset string) string {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return string(data)
	}
	r, err := charsetReader(charset, bytes.NewReader(data))
	if err != nil {
		return string(data)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}
