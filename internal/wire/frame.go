// Package wire speaks the platform bridge protocol: blocks of "Key: Value"
// lines terminated by a blank line.
package wire

import (
	"bytes"
	"strconv"
	"strings"
)

// Frame is one protocol block as an ordered set of headers.
type Frame struct {
	headers []Header
}

// Header is one "Key: Value" line.
type Header struct {
	Key   string
	Value string
}

// NewFrame creates a Frame from alternating keys and values.
func NewFrame(kvs ...string) Frame {
	f := Frame{}
	for i := 0; i+1 < len(kvs); i += 2 {
		f.headers = append(f.headers, Header{Key: kvs[i], Value: kvs[i+1]})
	}
	return f
}

// Get returns the first value for key, or "" if absent.
func (f Frame) Get(key string) string {
	for _, h := range f.headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

// Has reports whether key is present.
func (f Frame) Has(key string) bool {
	for _, h := range f.headers {
		if h.Key == key {
			return true
		}
	}
	return false
}

// Set replaces the value of key, appending it when absent.
func (f *Frame) Set(key, value string) {
	for i := range f.headers {
		if f.headers[i].Key == key {
			f.headers[i].Value = value
			return
		}
	}
	f.headers = append(f.headers, Header{Key: key, Value: value})
}

// Type returns the Event header.
func (f Frame) Type() string {
	return f.Get("Event")
}

// Action returns the Action header.
func (f Frame) Action() string {
	return f.Get("Action")
}

// GetInt returns the integer value for key, or 0.
func (f Frame) GetInt(key string) int {
	v, _ := strconv.Atoi(f.Get(key))
	return v
}

// GetBool parses yes/no, true/false and 1/0. Anything else is false.
func (f Frame) GetBool(key string) bool {
	switch strings.ToLower(f.Get(key)) {
	case "yes", "true", "1", "on":
		return true
	}
	return false
}

// Headers returns all headers in order.
func (f Frame) Headers() []Header {
	return f.headers
}

// IsResponse reports whether the frame answers an action.
func (f Frame) IsResponse() bool {
	return f.Get("Response") != ""
}

// Bytes encodes the frame with CRLF line endings and a terminating blank line.
func (f Frame) Bytes() []byte {
	var b bytes.Buffer
	for _, h := range f.headers {
		b.WriteString(h.Key)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

func formatBool(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
