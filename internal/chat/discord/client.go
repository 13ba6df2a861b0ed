package discord

import (
	"context"
	"io"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/discord-shim-go/internal/chat"
	"github.com/lk2023060901/discord-shim-go/internal/format"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/pkg/log"
	"github.com/lk2023060901/discord-shim-go/pkg/util/conc"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

// DefaultDownloadWorkers 为并发下载附件的协程数。
const DefaultDownloadWorkers = 4

// Intents 为中继需要的网关事件：非特权事件加消息正文。
const Intents = discordgo.IntentsAllWithoutPrivileged | discordgo.IntentsMessageContent

// Config 为 Discord 客户端配置。
type Config struct {
	Token          string
	ControlChannel protocol.ChannelID
	// DownloadWorkers 为附件下载并发数，<= 0 时使用 DefaultDownloadWorkers。
	DownloadWorkers int
}

// Client 基于 discordgo 实现 chat.Adapter，并把网关推送的消息交给 chat.Dispatcher。
type Client struct {
	log.Binder

	cfg     Config
	session *discordgo.Session
	pool    *conc.Pool[[]byte]

	selfID     *atomic.String
	dispatcher *atomic.Pointer[chat.Dispatcher]
	ready      chan struct{}
	readyOnce  *atomic.Bool
}

var (
	_ chat.Adapter = (*Client)(nil)
	_ chat.Fetcher = (*Client)(nil)
)

// New 创建 Discord 客户端，此时尚未连接网关。
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, merr.WrapErrConfigMissing("discord.token")
	}
	if cfg.DownloadWorkers <= 0 {
		cfg.DownloadWorkers = DefaultDownloadWorkers
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "discord: create session")
	}
	s.Identify.Intents = Intents

	c := &Client{
		cfg:        cfg,
		session:    s,
		pool:       conc.NewPool[[]byte](cfg.DownloadWorkers, conc.WithName("discord-download"), conc.WithConcealPanic(true)),
		selfID:     atomic.NewString(""),
		dispatcher: atomic.NewPointer[chat.Dispatcher](nil),
		ready:      make(chan struct{}),
		readyOnce:  atomic.NewBool(false),
	}
	c.BindComponent("discord")

	s.AddHandler(c.onReady)
	s.AddHandler(c.onMessageCreate)
	return c, nil
}

// Bind 设置入站消息的去向。Bind 之前收到的消息会被丢弃。
func (c *Client) Bind(router chat.Router) {
	c.dispatcher.Store(chat.NewDispatcher(router, c, c.cfg.ControlChannel, c.pool))
}

// Open 连接网关。
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return errors.Wrap(err, "discord: open gateway")
	}
	return nil
}

// Ready 在网关首次就绪后关闭。
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Close 断开网关并释放下载协程池。
func (c *Client) Close() error {
	err := c.session.Close()
	c.pool.Release()
	return err
}

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		c.selfID.Store(r.User.ID)
	}
	c.Logger().Info("discord gateway ready", zap.String("user", c.selfID.Load()))
	if c.readyOnce.CompareAndSwap(false, true) {
		close(c.ready)
	}
}

func (c *Client) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	d := c.dispatcher.Load()
	if d == nil || m.Message == nil {
		return
	}
	msg, err := toInbound(m.Message, c.selfID.Load())
	if err != nil {
		c.Logger().Warn("failed to convert inbound message", zap.String("id", m.ID), zap.Error(err))
		return
	}
	ctx, span := log.NewIntentContext("discord", "inbound")
	defer span.End()
	ctx = log.WithFields(ctx, log.FieldChannel(uint64(msg.Channel)), zap.String("messageID", m.ID))
	d.Handle(ctx, msg)
}

// SendText 实现 chat.Adapter。
func (c *Client) SendText(ctx context.Context, channel protocol.ChannelID, body string) error {
	_, err := c.session.ChannelMessageSend(channelString(channel), body, discordgo.WithContext(ctx))
	return err
}

// SendContent 实现 chat.Adapter。
func (c *Client) SendContent(ctx context.Context, channel protocol.ChannelID, unit format.ContentUnit) error {
	_, err := c.session.ChannelMessageSendComplex(channelString(channel), toMessageSend(unit), discordgo.WithContext(ctx))
	return err
}

// SendFile 实现 chat.Adapter。
func (c *Client) SendFile(ctx context.Context, channel protocol.ChannelID, label string, filename string, data []byte) error {
	msg := &discordgo.MessageSend{
		Content: label,
		Files:   []*discordgo.File{toFile(filename, data)},
	}
	_, err := c.session.ChannelMessageSendComplex(channelString(channel), msg, discordgo.WithContext(ctx))
	return err
}

// SetPresence 实现 chat.Adapter。
func (c *Client) SetPresence(_ context.Context, p chat.PresenceUpdate) error {
	switch p.Kind {
	case chat.ActivityStreaming:
		return c.session.UpdateStreamingStatus(0, p.Text, p.URL)
	default:
		return c.session.UpdateGameStatus(0, p.Text)
	}
}

// Fetch 实现 chat.Fetcher：下载附件内容。
func (c *Client) Fetch(ctx context.Context, a chat.Attachment) ([]byte, error) {
	return download(ctx, c.session.Client, a)
}

func download(ctx context.Context, client *http.Client, a chat.Attachment) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "discord: build request for %s", a.Filename)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "discord: download %s", a.Filename)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("discord: download %s: unexpected status %d", a.Filename, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "discord: read %s", a.Filename)
	}
	return data, nil
}
