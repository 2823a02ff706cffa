package account

import (
	"context"
	"fmt"

	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"
)

// Send composes the draft and sends it. The sender defaults to the account address.
func (m *Manager) Send(ctx context.Context, name string, draft mailbox.Draft) error {
	s, err := m.session(name)
	if err != nil {
		return err
	}
	if draft.From == "" {
		draft.From = s.account.Email
	}
	recipients, err := bareAddresses(draft.Recipients())
	if err != nil {
		return err
	}
	raw, err := mailbox.Compose(draft)
	if err != nil {
		return err
	}
	return m.send(ctx, s, raw, recipients)
}

// SendRaw sends a message already formatted. The recipients are read from the To, Cc and Bcc fields.
func (m *Manager) SendRaw(ctx context.Context, name string, raw []byte) error {
	s, err := m.session(name)
	if err != nil {
		return err
	}
	recipients, err := mailbox.Recipients(raw)
	if err != nil {
		return err
	}
	return m.send(ctx, s, raw, recipients)
}

// send encrypts the message before anything goes on the network: a missing key means nothing is sent
func (m *Manager) send(ctx context.Context, s *session, raw []byte, recipients []string) error {
	if s.account.Send == nil {
		return fmt.Errorf("account %q has no send backend: %w", s.name, lib.Unsupported(lib.BackendKind(s.account.Read.Type), lib.CapSend))
	}
	if !Capabilities(s.account.Send.Type).Has(lib.CapSend) {
		return lib.Unsupported(lib.BackendKind(s.account.Send.Type), lib.CapSend)
	}
	from, err := mailbox.Sender(raw)
	if err != nil {
		from = s.account.Email
	}

	if s.account.Encryption.EncryptOutgoing() {
		pipeline, err := m.encryption(s)
		if err != nil {
			return err
		}
		raw, err = pipeline.EncryptOutgoing(ctx, raw, recipients)
		if err != nil {
			return err
		}
	}

	backend, err := m.sendBackend(ctx, s)
	if err != nil {
		return err
	}
	err = backend.SendMessage(ctx, from, recipients, raw)
	if err != nil {
		return err
	}
	m.log.Printf("account %q: message sent to %d recipient(s)", s.name, len(recipients))

	if s.account.SentFolder == "" {
		return nil
	}
	_, err = m.AddMessage(ctx, s.name, s.account.SentFolder, raw, []string{imap.SeenFlag})
	if err != nil {
		return fmt.Errorf("message sent, but cannot save a copy in %q: %w", s.account.SentFolder, err)
	}
	return nil
}

func bareAddresses(addresses []string) ([]string, error) {
	output := make([]string, 0, len(addresses))
	for _, address := range addresses {
		parsed, err := mail.ParseAddress(address)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", address, err)
		}
		output = append(output, parsed.Address)
	}
	return output, nil
}
