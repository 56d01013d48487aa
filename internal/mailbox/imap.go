package mailbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"order-intake/internal/logging"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// IMAPConfig holds the mailbox connection settings
type IMAPConfig struct {
	Addr           string // host:port, TLS
	User           string
	Password       string
	Folder         string
	AttachmentsDir string
}

// IMAPReader reads UNSEEN messages over IMAP. Fetching a full body sets
// \Seen on the server, so a message is delivered to at most one cycle.
type IMAPReader struct {
	cfg IMAPConfig
}

func NewIMAPReader(cfg IMAPConfig) *IMAPReader {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return &IMAPReader{cfg: cfg}
}

// CheckLogin verifies the credentials without fetching anything
func (r *IMAPReader) CheckLogin(ctx context.Context) error {
	c, err := r.dial()
	if err != nil {
		return err
	}
	return c.Logout()
}

func (r *IMAPReader) dial() (*client.Client, error) {
	c, err := client.DialTLS(r.cfg.Addr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrFetch, r.cfg.Addr, err)
	}
	if err := c.Login(r.cfg.User, r.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("%w: login: %v", ErrFetch, err)
	}
	return c, nil
}

func (r *IMAPReader) FetchUnseen(ctx context.Context) ([]Message, error) {
	c, err := r.dial()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select(r.cfg.Folder, false); err != nil {
		return nil, fmt.Errorf("%w: select %s: %v", ErrFetch, r.cfg.Folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrFetch, err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	fetched := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, fetched)
	}()

	var raw []*imap.Message
	for msg := range fetched {
		raw = append(raw, msg)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", ErrFetch, err)
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].SeqNum < raw[j].SeqNum })

	log := logging.For("mailbox")
	messages := make([]Message, 0, len(raw))
	for _, msg := range raw {
		body := msg.GetBody(section)
		if body == nil {
			log.Warnf("Mailbox: message seq=%d returned no body", msg.SeqNum)
			continue
		}
		m, err := r.parse(body)
		if err != nil {
			log.Warnf("Mailbox: failed to parse message seq=%d: %v", msg.SeqNum, err)
			continue
		}
		messages = append(messages, *m)
	}

	log.Infof("Mailbox: fetched %d unseen message(s) from %s", len(messages), r.cfg.Folder)
	return messages, nil
}

func (r *IMAPReader) parse(body io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(body)
	if err != nil {
		return nil, err
	}

	m := &Message{}
	m.Subject, _ = mr.Header.Subject()
	m.MessageID, _ = mr.Header.MessageID()
	if date, err := mr.Header.Date(); err == nil {
		m.Date = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		m.From = from[0].Address
		m.FromName = from[0].Name
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, err
			}
			switch {
			case strings.HasPrefix(ct, "text/html"):
				m.HTMLBody += string(b)
			case ct == "" || strings.HasPrefix(ct, "text/plain"):
				m.TextBody += string(b)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			name, err := r.saveAttachment(filename, p.Body)
			if err != nil {
				logging.For("mailbox").Warnf("Mailbox: failed to save attachment %q: %v", filename, err)
				continue
			}
			if name != "" {
				m.Attachments = append(m.Attachments, name)
			}
		}
	}

	return m, nil
}

func (r *IMAPReader) saveAttachment(filename string, body io.Reader) (string, error) {
	if r.cfg.AttachmentsDir == "" || filename == "" {
		return "", nil
	}
	if err := os.MkdirAll(r.cfg.AttachmentsDir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(filename))
	f, err := os.Create(filepath.Join(r.cfg.AttachmentsDir, name))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return "", err
	}
	return name, nil
}
