package codec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/discord-shim-go/internal/network/framer"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

func TestResponsePipeline(t *testing.T) {
	c := Default()
	want := &protocol.Response{Payload: &protocol.Settings{ChannelID: 77, CommandPrefix: "!"}}

	var buf bytes.Buffer
	require.NoError(t, c.WriteResponse(&buf, want))
	size := binary.LittleEndian.Uint32(buf.Bytes()[:framer.HeaderSize])

	got, n, err := c.ReadResponse(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, int(size), n)
}

func TestRequestPipeline(t *testing.T) {
	c := Default()
	reqs := []*protocol.Request{
		protocol.NewCommandRequest(1, "/pause"),
		protocol.NewFileRequest(2, "a.gcode", []byte("G28")),
	}

	var buf bytes.Buffer
	for _, r := range reqs {
		require.NoError(t, c.WriteRequest(&buf, r))
	}
	for _, want := range reqs {
		got, err := c.ReadRequest(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReadResponseDecodeError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, framer.WriteFrame(&buf, []byte{0xFF}))

	_, n, err := Default().ReadResponse(&buf)
	assert.ErrorIs(t, err, merr.ErrDecodeMalformed)
	assert.Equal(t, 1, n)
}

func TestFramerOption(t *testing.T) {
	c := New(Options{Framer: framer.NewLengthPrefixedFramer(2)})
	err := c.WriteRequest(&bytes.Buffer{}, protocol.NewCommandRequest(1, "too long"))
	assert.ErrorIs(t, err, merr.ErrFramingTooLarge)

	assert.ErrorIs(t, c.WriteRequest(&bytes.Buffer{}, nil), merr.ErrParameterMissing)
	assert.ErrorIs(t, c.WriteResponse(&bytes.Buffer{}, nil), merr.ErrParameterMissing)
}
