// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package eventstream encodes and decodes the binary AWS event-stream
// frames the Bedrock runtime uses for converse-stream responses.
// Framing (prelude, CRCs, header wire format) is delegated to the AWS
// eventstream codec so output stays bit-compatible with native Bedrock;
// this package adds the JSON body padding Bedrock clients expect.
package eventstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

const (
	headerEventType   = ":event-type"
	headerContentType = ":content-type"
	headerMessageType = ":message-type"

	contentTypeJSON = "application/json"
	messageTypeEvt  = "event"

	// paddingAlphabet supplies the value of the "p" body field. Bedrock
	// pads every event body toward targetBodyLen with a prefix of this
	// fixed 62-character alphabet.
	paddingAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	targetBodyLen   = 80
)

// Event is one decoded converse-stream event.
type Event struct {
	Type    string
	Payload map[string]interface{}
}

// Encode frames a single event. The payload is serialized as JSON with
// a trailing "p" padding field sized so the body reaches ~80 bytes.
func Encode(eventType string, payload interface{}) ([]byte, error) {
	body, err := padBody(payload)
	if err != nil {
		return nil, err
	}

	msg := eventstream.Message{Payload: body}
	msg.Headers.Set(headerEventType, eventstream.StringValue(eventType))
	msg.Headers.Set(headerContentType, eventstream.StringValue(contentTypeJSON))
	msg.Headers.Set(headerMessageType, eventstream.StringValue(messageTypeEvt))

	var buf bytes.Buffer
	if err := eventstream.NewEncoder().Encode(&buf, msg); err != nil {
		return nil, fmt.Errorf("encode event-stream frame: %w", err)
	}
	return buf.Bytes(), nil
}

// padBody marshals payload and splices in the "p" field. The padding
// length is chosen so the final body length reaches targetBodyLen;
// oversized bodies get minimal padding rather than none so the field
// is always present.
func padBody(payload interface{}) ([]byte, error) {
	base, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	if len(base) < 2 || base[len(base)-1] != '}' {
		return nil, fmt.Errorf("event payload must be a JSON object, got %q", string(base))
	}

	const fieldOverhead = len(`,"p":""`)
	padLen := targetBodyLen - len(base) - fieldOverhead
	if padLen < 0 {
		padLen = 0
	}
	if padLen > len(paddingAlphabet) {
		padLen = len(paddingAlphabet)
	}

	var buf bytes.Buffer
	buf.Grow(len(base) + fieldOverhead + padLen)
	buf.Write(base[:len(base)-1])
	if len(base) > 2 {
		buf.WriteByte(',')
	}
	buf.WriteString(`"p":"`)
	buf.WriteString(paddingAlphabet[:padLen])
	buf.WriteString(`"}`)
	return buf.Bytes(), nil
}

// Decoder reads framed events from an upstream body.
type Decoder struct {
	dec *eventstream.Decoder
	r   io.Reader
}

// NewDecoder wraps r for frame-by-frame reading.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: eventstream.NewDecoder(), r: r}
}

// Next returns the next event, with the padding field stripped from
// the payload. io.EOF signals a clean end of stream.
func (d *Decoder) Next() (*Event, error) {
	msg, err := d.dec.Decode(d.r, nil)
	if err != nil {
		return nil, err
	}

	evt := &Event{}
	if v := msg.Headers.Get(headerEventType); v != nil {
		if sv, ok := v.(eventstream.StringValue); ok {
			evt.Type = string(sv)
		}
	}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &evt.Payload); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		delete(evt.Payload, "p")
	}
	return evt, nil
}

// DecodeAll drains r and returns every event in order.
func DecodeAll(r io.Reader) ([]*Event, error) {
	dec := NewDecoder(r)
	var events []*Event
	for {
		evt, err := dec.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, evt)
	}
}
