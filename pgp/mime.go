package pgp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
)

func bufioReader(raw []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(raw))
}

// buildEncrypted writes the RFC 3156 message: the version part, then the armored
// encryption of the whole original message
func buildEncrypted(original textproto.Header, raw []byte, to []*openpgp.Entity) ([]byte, error) {
	header := message.Header{}
	for _, key := range clearFields {
		fields := original.FieldsByKey(key)
		for fields.Next() {
			header.Add(key, fields.Value())
		}
	}
	header.Set("Subject", placeholder)
	header.Set("Mime-Version", "1.0")
	header.SetContentType(encryptedType, map[string]string{"protocol": protocol})

	buffer := &bytes.Buffer{}
	writer, err := message.CreateWriter(buffer, header)
	if err != nil {
		return nil, err
	}

	versionHeader := message.Header{}
	versionHeader.SetContentType(protocol, nil)
	versionHeader.Set("Content-Description", "PGP/MIME version identification")
	part, err := writer.CreatePart(versionHeader)
	if err != nil {
		return nil, err
	}
	if _, err = io.WriteString(part, "Version: 1\r\n"); err != nil {
		return nil, err
	}
	if err = part.Close(); err != nil {
		return nil, err
	}

	payloadHeader := message.Header{}
	payloadHeader.SetContentType("application/octet-stream", map[string]string{"name": "encrypted.asc"})
	payloadHeader.SetContentDisposition("inline", map[string]string{"filename": "encrypted.asc"})
	payloadHeader.Set("Content-Description", "OpenPGP encrypted message")
	part, err = writer.CreatePart(payloadHeader)
	if err != nil {
		return nil, err
	}
	if err = encrypt(part, raw, to); err != nil {
		return nil, err
	}
	if err = part.Close(); err != nil {
		return nil, err
	}
	if err = writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func encrypt(output io.Writer, plain []byte, to []*openpgp.Entity) error {
	armored, err := armor.Encode(output, messageType, nil)
	if err != nil {
		return err
	}
	encrypted, err := openpgp.Encrypt(armored, to, nil, nil, nil)
	if err != nil {
		return err
	}
	if _, err = encrypted.Write(plain); err != nil {
		return err
	}
	if err = encrypted.Close(); err != nil {
		return err
	}
	if err = armored.Close(); err != nil {
		return err
	}
	_, err = io.WriteString(output, "\r\n")
	return err
}

// encryptedPayload returns the body of the second part of a PGP/MIME message
func encryptedPayload(raw []byte) (io.Reader, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}
	reader := entity.MultipartReader()
	if reader == nil {
		return nil, errors.New("not a multipart message")
	}
	version, err := reader.NextPart()
	if err != nil {
		return nil, fmt.Errorf("missing version part: %w", err)
	}
	mediaType, _, _ := version.Header.ContentType()
	if mediaType != protocol {
		return nil, fmt.Errorf("unexpected first part %q", mediaType)
	}
	payload, err := reader.NextPart()
	if err != nil {
		return nil, fmt.Errorf("missing encrypted part: %w", err)
	}
	content, err := io.ReadAll(payload.Body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(content), nil
}
