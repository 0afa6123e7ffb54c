// Package wire implements the framing shared by the team bus and the DCC
// communicate channel: every message is an 8-byte ASCII decimal length,
// left-padded with zeros, followed by a UTF-8 JSON payload.
package wire

import (
	"fmt"
	"io"
	"strconv"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
)

// HeaderSize is the fixed width of the length prefix.
const HeaderSize = 8

// MaxPayloadSize caps a single frame. Payloads are UI-sized JSON
// documents; anything larger is a framing error.
const MaxPayloadSize = 64 * 1024 * 1024

var (
	ErrFraming      apperrors.Error = apperrors.New("framing error")
	ErrFrameTooBig  apperrors.Error = ErrFraming.New("frame exceeds maximum payload size")
	ErrBadHeader    apperrors.Error = ErrFraming.New("header is not a zero-padded decimal length")
	ErrShortPayload apperrors.Error = ErrFraming.New("connection closed mid-payload")
)

// WriteFrame writes one framed payload to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return ErrFrameTooBig
	}
	header := fmt.Sprintf("%0*d", HeaderSize, len(payload))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one framed payload from r. io.EOF is returned untouched
// when the connection closes cleanly between frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, ErrBadHeader.Err(err)
	}
	n, err := strconv.Atoi(string(header))
	if err != nil || n < 0 {
		return nil, ErrBadHeader.Msg("invalid length header: " + string(header))
	}
	if n > MaxPayloadSize {
		return nil, ErrFrameTooBig
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrShortPayload.Err(err)
	}
	return payload, nil
}
