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

package table

import "strconv"

// Kind is the inferred type of a column.
type Kind int

const (
	String Kind = iota
	Number
)

func (k Kind) String() string {
	if k == Number {
		return "number"
	}
	return "string"
}

// Value is a single cell: null, a string, or a number. Numbers read from
// text keep that text so identifying fields round-trip unchanged.
type Value struct {
	text  string
	num   float64
	isNum bool
	valid bool
}

// Null returns the null value.
func Null() Value {
	return Value{}
}

// StringValue returns a non-null string value.
func StringValue(s string) Value {
	return Value{text: s, valid: true}
}

// NumberValue returns a non-null number with no source text.
func NumberValue(f float64) Value {
	return Value{num: f, isNum: true, valid: true}
}

// parsedNumber keeps both the parsed number and the text it came from.
func parsedNumber(text string, f float64) Value {
	return Value{text: text, num: f, isNum: true, valid: true}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return !v.valid
}

// IsNumber reports whether the value holds a number.
func (v Value) IsNumber() bool {
	return v.valid && v.isNum
}

// Float returns the numeric value, if any.
func (v Value) Float() (float64, bool) {
	return v.num, v.IsNumber()
}

// Text returns the textual form of the value. Null is the empty string.
func (v Value) Text() string {
	switch {
	case !v.valid:
		return ""
	case v.isNum && v.text == "":
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return v.text
	}
}

func (v Value) String() string {
	if !v.valid {
		return "<null>"
	}
	return v.Text()
}
