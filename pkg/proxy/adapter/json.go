// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ImageOmittedPlaceholder replaces image blocks too large to forward.
const ImageOmittedPlaceholder = "[Image omitted due to size]"

// maxImageBytes is the decoded-size cap for forwarded images.
const maxImageBytes = 100 * 1024

// ImageTooLarge reports whether a base64 payload decodes past the cap.
func ImageTooLarge(base64Data string) bool {
	return len(base64Data)*3/4 > maxImageBytes
}

// DecodeJSONMap parses body into a generic map, keeping numbers as
// json.Number so re-marshaling does not mangle integers.
func DecodeJSONMap(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing request body: %w", err)
	}
	return m, nil
}

// Str returns m[key] when it is a string.
func Str(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// Bool returns m[key] when it is a bool.
func Bool(m map[string]interface{}, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Slice returns m[key] when it is an array.
func Slice(m map[string]interface{}, key string) []interface{} {
	s, _ := m[key].([]interface{})
	return s
}

// Map returns m[key] when it is an object.
func Map(m map[string]interface{}, key string) map[string]interface{} {
	mm, _ := m[key].(map[string]interface{})
	return mm
}

// Int returns m[key] as an int when it is a JSON number.
func Int(m map[string]interface{}, key string) int {
	switch n := m[key].(type) {
	case json.Number:
		v, _ := n.Int64()
		return int(v)
	case float64:
		return int(n)
	}
	return 0
}
