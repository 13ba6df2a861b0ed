package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// skip 由字段回调返回，表示该字段未知或类型不匹配，由 consumeFields 跳过。
const skip = -1

type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// consumeFields 逐个解析 b 中的字段。
//
// fn 收到的 b 从字段值开始，返回值为已消费的字节数；返回 skip 时按 wire type 跳过该字段。
func consumeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == skip {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeBytes(b []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeVarint(b []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeStringInto(b []byte, dst *string) (int, error) {
	v, n, err := consumeBytes(b)
	if err != nil {
		return 0, err
	}
	*dst = string(v)
	return n, nil
}

// 以下 append 函数遵循 proto3 语义，零值字段不写出。

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, protowire.EncodeBool(v))
}

// appendMessage 总是写出子消息，空子消息同样表示 oneof 分支已选中。
func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
