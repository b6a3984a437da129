// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors creates and wraps errors with layered context and a kind
// that classifies the failure for callers deciding how to report it.
package errors

import (
	"fmt"
	"io"
	"strings"
)

// Kind classifies an error by the stage of the reshape that failed.
type Kind int

const (
	// Unknown is the kind of errors that were never classified.
	Unknown Kind = iota
	// IO covers missing, unreadable or unwritable files and failed
	// (de)compression.
	IO
	// Parse covers malformed delimited text, including a missing header.
	Parse
	// Schema covers columns referenced by a transform but absent from the
	// table, and renames that would collide.
	Schema
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "IOError"
	case Parse:
		return "ParseError"
	case Schema:
		return "SchemaError"
	default:
		return "Error"
	}
}

// New returns an error with the given message.
func New(message string) error {
	return fmt.Errorf("%s", message)
}

// Errorf returns an error with a message formatted according to the format
// specifier.
func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// Newf returns an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &mobilityError{
		cause: fmt.Errorf(format, args...),
		kind:  kind,
	}
}

// WithKind returns err classified as kind. The outermost classification wins
// when KindOf walks the chain.
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &mobilityError{
		cause: err,
		kind:  kind,
		top:   getTop(err),
	}
}

// Classify returns err classified as kind unless its chain already carries
// a kind.
func Classify(err error, kind Kind) error {
	if err == nil || KindOf(err) != Unknown {
		return err
	}
	return WithKind(err, kind)
}

// Wrap returns a new error annotating err with a new message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &mobilityError{
		cause: err,
		msg:   message,
		top:   getTop(err),
	}
}

// Wrapf returns a new error annotating err with a new message according to
// the format specifier.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &mobilityError{
		cause: err,
		msg:   fmt.Sprintf(format, args...),
		top:   getTop(err),
	}
}

// WithContext returns a new error adding additional context to err.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return &mobilityError{
		cause:   err,
		context: context,
		top:     getTop(err),
	}
}

// WithContextf returns a new error adding additional context to err according
// to the format specifier.
func WithContextf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &mobilityError{
		cause:   err,
		context: fmt.Sprintf(format, args...),
		top:     getTop(err),
	}
}

// SetTopLevelMsg returns a new error with the given top level message. The top
// level message is printed first by Error, followed by the full chain.
func SetTopLevelMsg(err error, top string) error {
	if err == nil {
		return nil
	}
	return &mobilityError{
		cause: err,
		top:   top,
	}
}

// SetTopLevelMsgf is SetTopLevelMsg with a formatted message.
func SetTopLevelMsgf(err error, format string, args ...any) error {
	return SetTopLevelMsg(err, fmt.Sprintf(format, args...))
}

// KindOf reports the outermost kind recorded in err's chain, or Unknown.
func KindOf(err error) Kind {
	for err != nil {
		if me, ok := err.(*mobilityError); ok && me.kind != Unknown {
			return me.kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return Unknown
		}
		err = u.Unwrap()
	}
	return Unknown
}

// Is reports whether err was classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func getTop(e error) string {
	if me, ok := e.(*mobilityError); ok {
		return me.top
	}
	return ""
}

// mobilityError is one layer of detail about a failure. Layers nest in the
// order they were added around the original error.
//
// * A layer without a cause is the original error and carries msg.
// * When msg and context are both set, context describes this layer.
// * top always propagates up from the cause; empty means it was never set.
// * kind is only set on the layer that classified the error.
type mobilityError struct {
	cause   error
	context string
	msg     string
	top     string
	kind    Kind
}

// Error prints the top level message first, then each layer's context and
// message, and the original error last.
func (e *mobilityError) Error() string {
	var builder strings.Builder

	if e.top != "" {
		builder.WriteString(fmt.Sprintf("%s\nFull error:\n", e.top))
	}

	e.printRecursive(&builder)

	return builder.String()
}

func (e *mobilityError) printRecursive(builder *strings.Builder) {
	wraps := e.cause != nil

	if e.context != "" {
		// Increase the indent for multi-line contexts.
		builder.WriteString(fmt.Sprintf("\t%s\n", strings.ReplaceAll(e.context, "\n", "\n\t")))
	}
	if e.msg != "" {
		builder.WriteString(e.msg)
		if wraps {
			builder.WriteString("\n\tcaused by:\n")
		}
	}

	if wraps {
		if me, ok := e.cause.(*mobilityError); ok {
			me.printRecursive(builder)
		} else {
			builder.WriteString(e.cause.Error())
		}
	}
}

// Format implements the fmt.Formatter interface
func (e *mobilityError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v', 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// Unwrap returns the cause of this error if present.
func (e *mobilityError) Unwrap() error {
	return e.cause
}
