package wire

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"type":"refresh"}`)

	err := WriteFrame(&buf, payload)
	require.NoError(t, err)

	// header is the zero-padded decimal payload length
	assert.Equal(t, "00000018", buf.String()[:HeaderSize])

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, nil))
	assert.Equal(t, "00000000", buf.String())

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFrameSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"type":"refresh"}`)))
	require.NoError(t, WriteFrame(&buf, []byte(`{"type":"tooltip","text":"hi"}`)))

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	second, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, "refresh", PeekType(first))
	assert.Equal(t, "tooltip", PeekType(second))

	_, err = ReadFrame(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestFrameBadHeader(t *testing.T) {
	r := strings.NewReader("garbage!payload")
	_, err := ReadFrame(r)
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestFrameTruncatedPayload(t *testing.T) {
	r := strings.NewReader("00000010short")
	_, err := ReadFrame(r)
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestMessageEncodeDecode(t *testing.T) {
	msg := Message{Type: TypePopupCustom, Title: "export done", Text: "hero modeling"}
	data, err := Encode(msg)
	require.NoError(t, err)

	var got Message
	require.NoError(t, Decode(data, &got))
	assert.Equal(t, msg, got)
}
