package main

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io/ioutil"
	"log"
	"mime/quotedprintable"
	"strings"

	"github.com/DusanKasan/parsemail"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Message source polling an IMAP mailbox for report emails from the
//  configured sender. Every Fetch opens a fresh connection, the polling
//  interval is long enough that keeping one open buys nothing.
type IMAPSource struct {
	server   string
	port     uint
	email    string
	password string
	mailbox  string
	sender   string
}

func NewIMAPSource(config Config) *IMAPSource {
	return &IMAPSource{
		server:   config.IMAPServer,
		port:     config.IMAPPort,
		email:    config.IMAPEmail,
		password: config.IMAPPassword,
		mailbox:  config.IMAPMailbox,
		sender:   config.TargetSender,
	}
}

// Establishes a TLS connection and logs in.
func (s *IMAPSource) connect() (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", s.server, s.port)
	client, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName: s.server,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := client.Login(s.email, s.password).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	return client, nil
}

// Fetches all messages from the target sender in the configured mailbox.
// Messages already ingested come back again on every poll, deduplication is
//  the pipeline's job, not the transport's.
func (s *IMAPSource) Fetch() ([]RawMessage, error) {
	client, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if _, err := client.Select(s.mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", s.mailbox, err)
	}

	searchData, err := client.Search(&imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "From", Value: s.sender},
		},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search for sender %s failed: %w", s.sender, err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	fetchOptions := &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOptions)

	var messages []RawMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		msgData, err := msg.Collect()
		if err != nil {
			log.Printf("IMAP: Error collecting message: %v", err)
			continue
		}
		for _, section := range msgData.BodySection {
			if len(section.Bytes) == 0 {
				continue
			}
			raw, err := ParseRawMessage(section.Bytes)
			if err != nil {
				log.Printf("IMAP: Unable to parse message: %v", err)
				break
			}
			messages = append(messages, raw)
			break
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	return messages, nil
}

// Turns a raw RFC822 message into the subject/date/plain-text tuple the
//  pipeline works on. Only the plain text alternative matters, the HTML part
//  of a report carries the same content.
func ParseRawMessage(b []byte) (RawMessage, error) {
	email, err := parsemail.Parse(bytes.NewReader(b))
	if err != nil {
		return RawMessage{}, err
	}
	return RawMessage{
		Subject:    email.Subject,
		DateHeader: email.Header.Get("Date"),
		Body:       decodeTextBody(email),
	}, nil
}

// If the email transfer encoding is quoted-printable or base64, the text body
//  must be decoded before pattern matching can work on it.
func decodeTextBody(email parsemail.Email) string {
	encoding := email.Header.Get("Content-Transfer-Encoding")
	if encoding == "quoted-printable" {
		quotedR := quotedprintable.NewReader(strings.NewReader(email.TextBody))
		if b, err := ioutil.ReadAll(quotedR); err == nil {
			return string(b)
		}
	} else if encoding == "base64" {
		base64R := base64.NewDecoder(base64.StdEncoding, strings.NewReader(email.TextBody))
		if b, err := ioutil.ReadAll(base64R); err == nil {
			return string(b)
		}
	}
	return email.TextBody
}
