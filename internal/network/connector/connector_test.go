package connector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/discord-shim-go/internal/network/codec"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestSendAndReceive(t *testing.T) {
	ln := listen(t)

	serverDone := make(chan *protocol.Response, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		c := codec.Default()
		resp, _, err := c.ReadResponse(conn)
		if err != nil {
			return
		}
		serverDone <- resp
		_ = c.WriteRequest(conn, protocol.NewCommandRequest(9, "/status"))
		_ = conn.Close()
	}()

	conn, err := New(Config{}).Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(&protocol.Response{Payload: &protocol.Settings{ChannelID: 5}}))
	assert.Equal(t, &protocol.Settings{ChannelID: 5}, (<-serverDone).Payload)

	req, ok := <-conn.Recv()
	require.True(t, ok)
	assert.Equal(t, protocol.NewCommandRequest(9, "/status"), req)

	// 对端正常断开：通道关闭，Err 为 nil。
	_, ok = <-conn.Recv()
	assert.False(t, ok)
	<-conn.Done()
	assert.NoError(t, conn.Err())

	assert.ErrorIs(t, conn.Send(&protocol.Response{}), merr.ErrSessionClosed)
}

func TestSendNil(t *testing.T) {
	ln := listen(t)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			defer conn.Close()
			_, _, _ = codec.Default().ReadResponse(conn)
		}
	}()

	conn, err := New(Config{}).Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	assert.ErrorIs(t, conn.Send(nil), merr.ErrParameterMissing)
}

func TestMalformedFrameClosesWithError(t *testing.T) {
	ln := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// 长度 1，内容为非法 tag。
		_, _ = conn.Write([]byte{1, 0, 0, 0, 0xFF})
		time.Sleep(time.Second)
	}()

	conn, err := New(Config{}).Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)

	<-conn.Done()
	assert.ErrorIs(t, conn.Err(), merr.ErrDecodeMalformed)
}

func TestContextCancelCloses(t *testing.T) {
	ln := listen(t)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			defer conn.Close()
			_, _, _ = codec.Default().ReadResponse(conn)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	conn, err := New(Config{}).Dial(ctx, ln.Addr().String())
	require.NoError(t, err)

	cancel()
	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection not closed after cancel")
	}
	assert.NoError(t, conn.Err())
}

func TestDialRetry(t *testing.T) {
	ln := listen(t)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			_ = conn.Close()
		}
	}()

	attempts := 0
	var d net.Dialer
	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return d.DialContext(ctx, network, address)
	}

	c := New(Config{DialBackoff: 10 * time.Millisecond}, WithDialer(dial))
	conn, err := c.Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, 3, attempts)
}

func TestDialGivesUp(t *testing.T) {
	dial := func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	c := New(Config{DialAttempts: 2, DialBackoff: time.Millisecond}, WithDialer(dial))
	_, err := c.Dial(context.Background(), "127.0.0.1:1")
	assert.Error(t, err)
}
