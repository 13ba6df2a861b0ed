package relay

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/discord-shim-go/internal/chat"
	"github.com/lk2023060901/discord-shim-go/internal/format"
	network "github.com/lk2023060901/discord-shim-go/internal/network"
	"github.com/lk2023060901/discord-shim-go/internal/network/codec"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/internal/network/session"
	"github.com/lk2023060901/discord-shim-go/internal/presence"
	"github.com/lk2023060901/discord-shim-go/internal/stats"
	"github.com/lk2023060901/discord-shim-go/pkg/log"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

type sentFile struct {
	channel  protocol.ChannelID
	label    string
	filename string
	data     []byte
}

type fakeAdapter struct {
	mu        sync.Mutex
	texts     []string
	contents  []format.ContentUnit
	files     []sentFile
	presences []chat.PresenceUpdate
	err       error
}

func (a *fakeAdapter) SendText(_ context.Context, _ protocol.ChannelID, body string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, body)
	return a.err
}

func (a *fakeAdapter) SendContent(_ context.Context, _ protocol.ChannelID, unit format.ContentUnit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.contents = append(a.contents, unit)
	return a.err
}

func (a *fakeAdapter) SendFile(_ context.Context, channel protocol.ChannelID, label, filename string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files = append(a.files, sentFile{channel: channel, label: label, filename: filename, data: data})
	return a.err
}

func (a *fakeAdapter) SetPresence(_ context.Context, p chat.PresenceUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.presences = append(a.presences, p)
	return a.err
}

// device 为测试中的设备端：持有管道另一端并收集收到的请求。
type device struct {
	sess     *session.Session
	conn     net.Conn
	requests chan *protocol.Request
}

type RouterSuite struct {
	suite.Suite

	adapter *fakeAdapter
	clock   *clockwork.FakeClock
	router  *Router
}

func (s *RouterSuite) SetupTest() {
	s.adapter = &fakeAdapter{}
	s.clock = clockwork.NewFakeClock()
	s.router = s.newRouter(Config{AttachmentCeiling: 4})

	lg, _, err := log.InitTestLogger(s.T(), &log.Config{Level: "debug"})
	s.Require().NoError(err)
	s.router.SetLogger(&log.MLogger{Logger: lg})
}

func (s *RouterSuite) newRouter(cfg Config) *Router {
	return NewRouter(cfg, session.NewManager(), s.adapter,
		WithThrottle(presence.NewThrottle(s.adapter, presence.WithClock(s.clock))))
}

// connect 模拟接入层：创建会话、注册并回调 OnConnected。
func (s *RouterSuite) connect(r *Router, channel protocol.ChannelID) *device {
	server, client := net.Pipe()
	sess := session.New(context.Background(), uint64(r.sessions.Count()+1), server, session.Options{})
	sess.ApplySettings(&protocol.Settings{ChannelID: channel})
	r.sessions.Register(sess)
	r.OnConnected(sess)

	d := &device{sess: sess, conn: client, requests: make(chan *protocol.Request, 16)}
	go func() {
		c := codec.Default()
		for {
			req, err := c.ReadRequest(client)
			if err != nil {
				close(d.requests)
				return
			}
			d.requests <- req
		}
	}()
	s.T().Cleanup(func() {
		_ = sess.Close()
		_ = client.Close()
	})
	return d
}

func (s *RouterSuite) disconnect(r *Router, d *device) {
	_ = d.sess.Close()
	removed, _ := r.sessions.Unregister(d.sess)
	s.Require().True(removed)
	r.OnClosed(d.sess, nil)
}

func (s *RouterSuite) receive(d *device) *protocol.Request {
	select {
	case req := <-d.requests:
		return req
	case <-time.After(5 * time.Second):
		s.FailNow("no request received")
		return nil
	}
}

func (s *RouterSuite) TestRouteOutboundByChannel() {
	devices := []*device{
		s.connect(s.router, 5),
		s.connect(s.router, protocol.Unset),
		s.connect(s.router, 5),
	}

	req := protocol.NewCommandRequest(42, "/status")
	s.Equal(2, s.router.RouteOutbound(context.Background(), 5, req))
	s.Equal(req, s.receive(devices[0]))
	s.Equal(req, s.receive(devices[2]))
	s.Empty(devices[1].requests)

	s.Zero(s.router.RouteOutbound(context.Background(), protocol.Unset, req))
	s.Zero(s.router.RouteOutbound(context.Background(), 6, req))
}

func (s *RouterSuite) TestRouteOutboundContinuesAfterFailure() {
	broken := s.connect(s.router, 5)
	healthy := s.connect(s.router, 5)
	_ = broken.conn.Close()

	n := s.router.SendFile(context.Background(), 5, 1, "model.stl", []byte("solid"))
	s.Equal(1, n)
	s.Equal(protocol.NewFileRequest(1, "model.stl", []byte("solid")), s.receive(healthy))

	// 写失败的会话被关闭，之后不再匹配。
	s.True(broken.sess.Closed())
	s.Equal(1, s.router.SendCommand(context.Background(), 5, 1, "again"))
}

func (s *RouterSuite) TestRouteOutboundSkipsRemovedSession() {
	d := s.connect(s.router, 5)
	s.disconnect(s.router, d)

	s.Zero(s.router.SendCommand(context.Background(), 5, 1, "late"))
}

func (s *RouterSuite) TestOnMessageCountsFrames() {
	d := s.connect(s.router, 5)

	s.NoError(s.router.OnMessage(d.sess, &protocol.Response{}, 0))
	s.NoError(s.router.OnMessage(d.sess, &protocol.Response{Payload: &protocol.Settings{ChannelID: 9}}, 4))
	s.Equal(uint64(2), d.sess.Messages())
	s.Equal(uint64(4), d.sess.Bytes())
	s.Equal(protocol.ChannelID(9), d.sess.Channel())
}

func (s *RouterSuite) TestDispatchFileSplits() {
	d := s.connect(s.router, 5)

	err := s.router.OnMessage(d.sess, &protocol.Response{Payload: &protocol.File{Filename: "log.txt", Data: []byte("abcdefghij")}}, 20)
	s.Require().NoError(err)
	s.Equal([]sentFile{
		{channel: 5, label: "log.txt (part 1/3)", filename: "log.txt", data: []byte("abcd")},
		{channel: 5, label: "log.txt (part 2/3)", filename: "log.txt", data: []byte("efgh")},
		{channel: 5, label: "log.txt (part 3/3)", filename: "log.txt", data: []byte("ij")},
	}, s.adapter.files)
}

func (s *RouterSuite) TestDispatchContent() {
	d := s.connect(s.router, 5)

	content := &protocol.Content{
		Title:    "Done <@1>",
		Snapshot: &protocol.File{Filename: "snap.png", Data: []byte{1}},
	}
	s.Require().NoError(s.router.OnMessage(d.sess, &protocol.Response{Payload: content}, 10))
	s.Require().Len(s.adapter.contents, 1)
	unit := s.adapter.contents[0]
	s.Equal("<@1> ", unit.Text)
	s.Equal("attachment://snap.png", unit.Embed.ImageURL)
	s.Same(content.Snapshot, unit.Image)
}

func (s *RouterSuite) TestDispatchContentDropsOversizedSnapshot() {
	d := s.connect(s.router, 5)

	content := &protocol.Content{
		Title:    "Done",
		Snapshot: &protocol.File{Filename: "snap.png", Data: []byte("12345")},
	}
	s.Require().NoError(s.router.OnMessage(d.sess, &protocol.Response{Payload: content}, 10))
	s.Require().Len(s.adapter.contents, 1)
	unit := s.adapter.contents[0]
	s.Nil(unit.Image)
	s.Empty(unit.Embed.ImageURL)
	s.Equal("Done", unit.Embed.Title)
	s.NotNil(content.Snapshot, "device payload is left untouched")
}

func (s *RouterSuite) TestDispatchDeliveryErrorIsNotTerminal() {
	d := s.connect(s.router, 5)
	s.adapter.err = errors.New("discord: 500")

	err := s.router.OnMessage(d.sess, &protocol.Response{Payload: &protocol.Content{Title: "x"}}, 1)
	s.ErrorIs(err, merr.ErrDeliveryFailed)
	s.False(merr.IsTerminal(err))

	// 未绑定频道时无处投递。
	unbound := s.connect(s.router, protocol.Unset)
	err = s.router.OnMessage(unbound.sess, &protocol.Response{Payload: &protocol.File{Filename: "a"}}, 1)
	s.ErrorIs(err, merr.ErrDeliveryUnsupported)
	s.False(merr.IsTerminal(err))

	s.router.OnError(d.sess, network.StageDispatch, err)
}

func (s *RouterSuite) TestSelfHostedPresence() {
	d := s.connect(s.router, 5)
	s.Empty(s.adapter.presences, "self-hosted mode does not publish instance counts")

	s.Require().NoError(s.router.OnMessage(d.sess, &protocol.Response{Payload: &protocol.Presence{Text: "printing"}}, 1))
	s.Equal([]chat.PresenceUpdate{chat.Playing("printing")}, s.adapter.presences)
}

func (s *RouterSuite) TestCloudPresence() {
	r := s.newRouter(Config{CloudServer: true})

	first := s.connect(r, 5)
	s.connect(r, 5) // 冷却期内
	s.Equal([]chat.PresenceUpdate{chat.Streaming("to 1 instances", presence.StreamURL)}, s.adapter.presences)

	// 设备上报的 Presence 被忽略。
	s.Require().NoError(r.OnMessage(first.sess, &protocol.Response{Payload: &protocol.Presence{Text: "printing"}}, 1))
	s.Len(s.adapter.presences, 1)

	s.clock.Advance(presence.DefaultCooldown)
	s.disconnect(r, first)
	s.Equal(chat.Streaming("to 1 instances", presence.StreamURL), s.adapter.presences[1])
}

func (s *RouterSuite) TestBroadcastStats() {
	d := s.connect(s.router, 5)
	d.sess.RecordFrame(7)

	s.Require().NoError(s.router.BroadcastStats(context.Background(), 100))
	s.Require().Len(s.adapter.files, 1)
	f := s.adapter.files[0]
	s.Equal(protocol.ChannelID(100), f.channel)
	s.Equal(stats.Filename, f.filename)
	s.Equal(stats.Format([]stats.Row{{Addr: d.sess.RemoteAddr(), Messages: 1, Bytes: 7}}), f.data)

	s.adapter.err = errors.New("forbidden")
	s.ErrorIs(s.router.BroadcastStats(context.Background(), 100), merr.ErrDeliveryFailed)
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

// 解码失败的会话恰好被移除一次，并发的路由不会写给已移除的会话。
func TestDecodeErrorDuringConcurrentRouting(t *testing.T) {
	adapter := &fakeAdapter{}
	mgr := session.NewManager()
	r := NewRouter(Config{}, mgr, adapter)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.SendCommand(context.Background(), 5, 1, "ping")
			}
		}
	}()

	server, client := net.Pipe()
	sess := session.New(context.Background(), 1, server, session.Options{})
	sess.ApplySettings(&protocol.Settings{ChannelID: 5})
	mgr.Register(sess)

	// 设备端收到的第一个请求后发送非法帧并停止读取。
	go func() {
		c := codec.Default()
		_, _ = c.ReadRequest(client)
		_, _ = client.Write([]byte{1, 0, 0, 0, 0xFF})
	}()

	_, _, err := sess.Receive()
	require.ErrorIs(t, err, merr.ErrDecodeMalformed)
	_ = sess.Close()
	removed, _ := mgr.Unregister(sess)
	assert.True(t, removed)
	removed, _ = mgr.Unregister(sess)
	assert.False(t, removed)

	assert.Zero(t, r.SendCommand(context.Background(), 5, 1, "after removal"))
	close(stop)
	wg.Wait()
	_ = client.Close()
}
