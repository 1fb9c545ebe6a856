// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package adapter

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent is one server-sent event block.
type SSEEvent struct {
	// Name is the event: field, empty for unnamed events.
	Name string
	// Data is the concatenated data: payload.
	Data string
}

// Raw renders the event in canonical SSE framing, the form every
// provider emits.
func (e *SSEEvent) Raw() []byte {
	var b strings.Builder
	if e.Name != "" {
		b.WriteString("event: ")
		b.WriteString(e.Name)
		b.WriteString("\n")
	}
	b.WriteString("data: ")
	b.WriteString(e.Data)
	b.WriteString("\n\n")
	return []byte(b.String())
}

// SSEReader yields SSE event blocks from an upstream body.
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader wraps r. The buffer allows for large tool-argument
// deltas on a single line.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &SSEReader{scanner: scanner}
}

// Next returns the next event block, or io.EOF when the upstream is
// exhausted. Comment lines and malformed fields are skipped.
func (r *SSEReader) Next() (*SSEEvent, error) {
	var event SSEEvent
	var data []string
	seen := false

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if seen {
				event.Data = strings.Join(data, "\n")
				return &event, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "event:") {
			event.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			seen = true
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			seen = true
			continue
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if seen {
		// Stream ended without a trailing blank line.
		event.Data = strings.Join(data, "\n")
		return &event, nil
	}
	return nil, io.EOF
}
