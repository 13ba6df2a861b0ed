package protocol

// ChannelID 为聊天平台的频道标识，0 表示设备尚未绑定频道。
type ChannelID uint64

// Unset 表示未绑定频道。
const Unset ChannelID = 0

// IsSet 返回频道是否已绑定。
func (c ChannelID) IsSet() bool {
	return c != Unset
}

// File 为附件，既可由设备发往聊天平台，也可由聊天平台转发给设备。
//
// proto3 不区分空值与缺省值：空的 Data 与 Fields 编码后不占字节，解码结果统一为 nil。
type File struct {
	Filename string
	Data     []byte
}

// TextField 为富文本消息中的一个字段。
type TextField struct {
	Title  string
	Text   string
	Inline bool
}

// Content 为设备发出的富文本消息（对应聊天平台的 embed）。
type Content struct {
	Title       string
	Description string
	Author      string
	Color       int32
	Fields      []TextField
	// Snapshot 为可选的图片附件，在平台消息中作为 embed 图片展示。
	Snapshot *File
}

// Presence 为设备上报的在线状态文本。
type Presence struct {
	Text string
}

// Settings 为设备上报的会话配置，首帧通常即为 Settings。
type Settings struct {
	ChannelID       ChannelID
	CommandPrefix   string
	CycleTime       int32
	PresenceEnabled bool
}

// PayloadVisitor 对 Response 负载做穷尽分发。
//
// 新增负载类型时必须在此接口上增加方法，所有实现方会因此编译失败，从而不会遗漏处理分支。
type PayloadVisitor interface {
	VisitFile(f *File) error
	VisitContent(c *Content) error
	VisitPresence(p *Presence) error
	VisitSettings(s *Settings) error
}

// Payload 为 Response 负载的封闭和类型：*File | *Content | *Presence | *Settings。
type Payload interface {
	// Kind 返回负载类型名，用于日志与指标标签。
	Kind() string
	// Accept 将自身分发给 visitor 对应的方法。
	Accept(v PayloadVisitor) error

	isPayload()
}

func (*File) Kind() string     { return "file" }
func (*Content) Kind() string  { return "content" }
func (*Presence) Kind() string { return "presence" }
func (*Settings) Kind() string { return "settings" }

func (f *File) Accept(v PayloadVisitor) error     { return v.VisitFile(f) }
func (c *Content) Accept(v PayloadVisitor) error  { return v.VisitContent(c) }
func (p *Presence) Accept(v PayloadVisitor) error { return v.VisitPresence(p) }
func (s *Settings) Accept(v PayloadVisitor) error { return v.VisitSettings(s) }

func (*File) isPayload()     {}
func (*Content) isPayload()  {}
func (*Presence) isPayload() {}
func (*Settings) isPayload() {}

// Response 为设备发往中继的消息。Payload 为 nil 表示负载缺失。
type Response struct {
	Payload Payload
}

// Command 为聊天平台上的一条文本命令。
type Command struct {
	Text string
}

// RequestMessage 为 Request 负载的封闭和类型：*Command | *File。
type RequestMessage interface {
	Kind() string

	isRequestMessage()
}

func (*Command) Kind() string { return "command" }

func (*Command) isRequestMessage() {}
func (*File) isRequestMessage()    {}

// Request 为中继发往设备的消息。
type Request struct {
	// User 为聊天平台上发出该消息的用户 ID。
	User    uint64
	Message RequestMessage
}

// NewCommandRequest 构造一条命令请求。
func NewCommandRequest(user uint64, text string) *Request {
	return &Request{User: user, Message: &Command{Text: text}}
}

// NewFileRequest 构造一条附件请求。
func NewFileRequest(user uint64, filename string, data []byte) *Request {
	return &Request{User: user, Message: &File{Filename: filename, Data: data}}
}
