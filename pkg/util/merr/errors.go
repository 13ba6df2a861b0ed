// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// 叶子错误在此定义，新增前先确认下面的错误是否已能表达。
// 命名：Err + 分类前缀 + 错误名。
//
// 分类决定连接的处理方式：
//   - Framing/Decode：终止性，关闭来源连接；
//   - Delivery：记录后继续，不重试；
//   - Config：启动期致命。
var (
	ErrServiceInternal = newRelayError("service internal error", 5, false)

	ErrFramingShortRead = newRelayError("short read", 100, false)
	ErrFramingIO        = newRelayError("frame io failed", 101, false)
	ErrFramingTooLarge  = newRelayError("frame too large", 102, false)

	ErrDecodeMalformed = newRelayError("malformed message", 200, false)

	ErrDeliveryFailed      = newRelayError("delivery failed", 300, false)
	ErrDeliveryUnsupported = newRelayError("delivery unsupported", 301, false)

	ErrSessionClosed = newRelayError("session closed", 400, false)

	ErrParameterInvalid = newRelayError("invalid parameter", 1100, false)
	ErrParameterMissing = newRelayError("missing parameter", 1101, false)

	ErrConfigMissing = newRelayError("missing config", 1200, false)
	ErrConfigInvalid = newRelayError("invalid config", 1201, false)

	ErrHealthCheckTimeout = newRelayError("health check timed out", 1300, true)

	// 仅用于把未知错误映射为错误码，不要导出。
	errUnexpected = newRelayError("unexpected error", (1<<16)-1, false)
)

// relayError 以错误码判等，附加字段后的副本与原哨兵 errors.Is 相等。
type relayError struct {
	msg       string
	retriable bool
	errCode   int32
}

func newRelayError(msg string, code int32, retriable bool) relayError {
	return relayError{
		msg:       msg,
		retriable: retriable,
		errCode:   code,
	}
}

func (e relayError) code() int32 {
	return e.errCode
}

func (e relayError) Error() string {
	return e.msg
}

func (e relayError) Is(err error) bool {
	if cause, ok := errors.Cause(err).(relayError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

// multiErrors 为 Combine 的结果，Is 对其中任一错误成立即成立，Cause 为最后一个错误。
type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	if len(e.errs) == 2 {
		return e.errs[1]
	}
	return multiErrors{errs: e.errs[1:]}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

// Combine 合并多个错误，忽略 nil；全为 nil 时返回 nil。
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return multiErrors{errs: errs}
	}
}
