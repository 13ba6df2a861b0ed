package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

// 字段编号与设备端 protobuf 定义保持一致，不可修改。
const (
	fileData     protowire.Number = 1
	fileFilename protowire.Number = 2

	textFieldTitle  protowire.Number = 1
	textFieldText   protowire.Number = 2
	textFieldInline protowire.Number = 3

	contentTitle       protowire.Number = 1
	contentDescription protowire.Number = 2
	contentAuthor      protowire.Number = 3
	contentColor       protowire.Number = 4
	contentTextField   protowire.Number = 5
	contentSnapshot    protowire.Number = 6

	presenceText protowire.Number = 1

	settingsChannelID       protowire.Number = 1
	settingsPresenceEnabled protowire.Number = 2
	settingsCycleTime       protowire.Number = 3
	settingsCommandPrefix   protowire.Number = 4

	responseFile     protowire.Number = 1
	responseContent  protowire.Number = 2
	responsePresence protowire.Number = 3
	responseSettings protowire.Number = 4

	requestCommand protowire.Number = 1
	requestFile    protowire.Number = 2
	requestUser    protowire.Number = 3
)

// MarshalRequest 将 Request 编码为 protobuf 二进制。
func MarshalRequest(req *Request) []byte {
	var b []byte
	if req == nil {
		return b
	}
	switch m := req.Message.(type) {
	case *Command:
		b = protowire.AppendTag(b, requestCommand, protowire.BytesType)
		b = protowire.AppendString(b, m.Text)
	case *File:
		b = appendMessage(b, requestFile, appendFile(nil, m))
	}
	b = appendVarint(b, requestUser, req.User)
	return b
}

// MarshalResponse 将 Response 编码为 protobuf 二进制。
func MarshalResponse(resp *Response) []byte {
	var b []byte
	if resp == nil {
		return b
	}
	switch p := resp.Payload.(type) {
	case *File:
		b = appendMessage(b, responseFile, appendFile(nil, p))
	case *Content:
		b = appendMessage(b, responseContent, appendContent(nil, p))
	case *Presence:
		b = appendMessage(b, responsePresence, appendString(nil, presenceText, p.Text))
	case *Settings:
		b = appendMessage(b, responseSettings, appendSettings(nil, p))
	}
	return b
}

// UnmarshalResponse 解码设备发来的 Response。
// 数据截断或格式错误时返回 ErrDecodeMalformed。
func UnmarshalResponse(b []byte) (*Response, error) {
	resp := &Response{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skip, nil
		}
		v, n, err := consumeBytes(b)
		if err != nil {
			return 0, err
		}
		switch num {
		case responseFile:
			f, err := unmarshalFile(v)
			if err != nil {
				return 0, err
			}
			resp.Payload = f
		case responseContent:
			c, err := unmarshalContent(v)
			if err != nil {
				return 0, err
			}
			resp.Payload = c
		case responsePresence:
			p := &Presence{}
			err := consumeFields(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if num == presenceText && typ == protowire.BytesType {
					return consumeStringInto(b, &p.Text)
				}
				return skip, nil
			})
			if err != nil {
				return 0, err
			}
			resp.Payload = p
		case responseSettings:
			s, err := unmarshalSettings(v)
			if err != nil {
				return 0, err
			}
			resp.Payload = s
		default:
			return skip, nil
		}
		return n, nil
	})
	if err != nil {
		return nil, merr.WrapErrDecodeMalformed("Response", err)
	}
	return resp, nil
}

// UnmarshalRequest 解码中继发往设备的 Request。
func UnmarshalRequest(b []byte) (*Request, error) {
	req := &Request{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == requestCommand && typ == protowire.BytesType:
			cmd := &Command{}
			n, err := consumeStringInto(b, &cmd.Text)
			if err != nil {
				return 0, err
			}
			req.Message = cmd
			return n, nil
		case num == requestFile && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			f, err := unmarshalFile(v)
			if err != nil {
				return 0, err
			}
			req.Message = f
			return n, nil
		case num == requestUser && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			req.User = v
			return n, nil
		}
		return skip, nil
	})
	if err != nil {
		return nil, merr.WrapErrDecodeMalformed("Request", err)
	}
	return req, nil
}

func appendFile(b []byte, f *File) []byte {
	if len(f.Data) > 0 {
		b = protowire.AppendTag(b, fileData, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Data)
	}
	return appendString(b, fileFilename, f.Filename)
}

func appendContent(b []byte, c *Content) []byte {
	b = appendString(b, contentTitle, c.Title)
	b = appendString(b, contentDescription, c.Description)
	b = appendString(b, contentAuthor, c.Author)
	if c.Color != 0 {
		// int32 负数按 64 位符号扩展编码。
		b = appendVarint(b, contentColor, uint64(int64(c.Color)))
	}
	for i := range c.Fields {
		fb := appendString(nil, textFieldTitle, c.Fields[i].Title)
		fb = appendString(fb, textFieldText, c.Fields[i].Text)
		fb = appendBool(fb, textFieldInline, c.Fields[i].Inline)
		b = appendMessage(b, contentTextField, fb)
	}
	if c.Snapshot != nil {
		b = appendMessage(b, contentSnapshot, appendFile(nil, c.Snapshot))
	}
	return b
}

func appendSettings(b []byte, s *Settings) []byte {
	b = appendVarint(b, settingsChannelID, uint64(s.ChannelID))
	b = appendBool(b, settingsPresenceEnabled, s.PresenceEnabled)
	if s.CycleTime != 0 {
		b = appendVarint(b, settingsCycleTime, uint64(int64(s.CycleTime)))
	}
	return appendString(b, settingsCommandPrefix, s.CommandPrefix)
}

func unmarshalFile(b []byte) (*File, error) {
	f := &File{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skip, nil
		}
		switch num {
		case fileData:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			f.Data = append([]byte(nil), v...)
			return n, nil
		case fileFilename:
			return consumeStringInto(b, &f.Filename)
		}
		return skip, nil
	})
	return f, err
}

func unmarshalContent(b []byte) (*Content, error) {
	c := &Content{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == contentTitle && typ == protowire.BytesType:
			return consumeStringInto(b, &c.Title)
		case num == contentDescription && typ == protowire.BytesType:
			return consumeStringInto(b, &c.Description)
		case num == contentAuthor && typ == protowire.BytesType:
			return consumeStringInto(b, &c.Author)
		case num == contentColor && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			c.Color = int32(v)
			return n, nil
		case num == contentTextField && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			tf, err := unmarshalTextField(v)
			if err != nil {
				return 0, err
			}
			c.Fields = append(c.Fields, tf)
			return n, nil
		case num == contentSnapshot && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			f, err := unmarshalFile(v)
			if err != nil {
				return 0, err
			}
			c.Snapshot = f
			return n, nil
		}
		return skip, nil
	})
	return c, err
}

func unmarshalTextField(b []byte) (TextField, error) {
	var tf TextField
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == textFieldTitle && typ == protowire.BytesType:
			return consumeStringInto(b, &tf.Title)
		case num == textFieldText && typ == protowire.BytesType:
			return consumeStringInto(b, &tf.Text)
		case num == textFieldInline && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			tf.Inline = protowire.DecodeBool(v)
			return n, nil
		}
		return skip, nil
	})
	return tf, err
}

func unmarshalSettings(b []byte) (*Settings, error) {
	s := &Settings{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == settingsChannelID && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			s.ChannelID = ChannelID(v)
			return n, nil
		case num == settingsPresenceEnabled && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			s.PresenceEnabled = protowire.DecodeBool(v)
			return n, nil
		case num == settingsCycleTime && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			s.CycleTime = int32(v)
			return n, nil
		case num == settingsCommandPrefix && typ == protowire.BytesType:
			return consumeStringInto(b, &s.CommandPrefix)
		}
		return skip, nil
	})
	return s, err
}
