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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回错误码，用于日志与指标；非 relayError 按 ctx 错误或 unexpected 映射。
func Code(err error) int32 {
	if err == nil {
		return 0
	}
	if e, ok := errors.Cause(err).(relayError); ok {
		return e.code()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return CanceledCode
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutCode
	default:
		return errUnexpected.code()
	}
}

func IsRetryableErr(err error) bool {
	if e, ok := errors.Cause(err).(relayError); ok {
		return e.retriable
	}
	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// IsTerminal 返回 err 是否必须关闭其来源的设备连接。
func IsTerminal(err error) bool {
	return errors.IsAny(err,
		ErrFramingShortRead, ErrFramingIO, ErrFramingTooLarge,
		ErrDecodeMalformed,
	)
}

func WrapErrServiceInternal(reason string, msg ...string) error {
	return withMsg(wrapFieldsWithDesc(ErrServiceInternal, reason), msg)
}

// 以下带 cause 的包装保留底层错误，errors.Is 可同时匹配 cause 与哨兵，Code 返回哨兵的错误码。

func WrapErrFramingShortRead(segment string, want, got int, cause error) error {
	return Combine(cause, wrapFields(ErrFramingShortRead,
		value("segment", segment),
		value("want", want),
		value("got", got),
	))
}

func WrapErrFramingIO(op string, cause error) error {
	return Combine(cause, wrapFields(ErrFramingIO, value("op", op)))
}

func WrapErrFramingTooLarge(size, limit uint32) error {
	return wrapFieldsWithDesc(ErrFramingTooLarge, fmt.Sprintf("%d > %d", size, limit), value("size", size))
}

func WrapErrDecodeMalformed(message string, cause error) error {
	return Combine(cause, wrapFields(ErrDecodeMalformed, value("message", message)))
}

func WrapErrDeliveryFailed(kind string, channel uint64, cause error) error {
	return Combine(cause, wrapFields(ErrDeliveryFailed,
		value("kind", kind),
		value("channel", channel),
	))
}

func WrapErrDeliveryUnsupported(kind string, msg ...string) error {
	return withMsg(wrapFields(ErrDeliveryUnsupported, value("kind", kind)), msg)
}

func WrapErrSessionClosed(id uint64, msg ...string) error {
	return withMsg(wrapFields(ErrSessionClosed, value("session", id)), msg)
}

func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	return withMsg(wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	), msg)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	return withMsg(wrapFields(ErrParameterMissing, value("missing_param", param)), msg)
}

func WrapErrConfigMissing(key string, msg ...string) error {
	return withMsg(wrapFields(ErrConfigMissing, value("key", key)), msg)
}

func WrapErrConfigInvalid[T any](key string, actual T, msg ...string) error {
	return withMsg(wrapFields(ErrConfigInvalid,
		value("key", key),
		value("actual", actual),
	), msg)
}

func WrapErrHealthCheckTimeout(marker string, msg ...string) error {
	return withMsg(wrapFields(ErrHealthCheckTimeout, value("marker", marker)), msg)
}

func withMsg(err error, msg []string) error {
	if len(msg) == 0 {
		return err
	}
	return errors.Wrap(err, strings.Join(msg, "->"))
}

func wrapFields(err relayError, fields ...valueField) error {
	for i := range fields {
		err.msg += "[" + fields[i].String() + "]"
	}
	return err
}

func wrapFieldsWithDesc(err relayError, desc string, fields ...valueField) error {
	e := wrapFields(err, fields...).(relayError)
	e.msg += ": " + desc
	return e
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{name: name, value: value}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
