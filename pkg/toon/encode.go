// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package toon implements TOON (token-oriented object notation), a
// compact textual serialization for JSON values, and the tool-result
// compressor built on it. TOON drops the brace/quote overhead of JSON
// and renders arrays of uniform objects as tables, which usually
// tokenizes cheaper than the equivalent JSON.
package toon

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Encode renders v (a decoded JSON value) as TOON.
func Encode(v interface{}) string {
	var b strings.Builder
	switch val := v.(type) {
	case map[string]interface{}:
		encodeObject(&b, val, 0)
	case []interface{}:
		encodeArray(&b, "", val, 0)
	default:
		b.WriteString(formatScalar(val))
	}
	return strings.TrimRight(b.String(), "\n")
}

func encodeObject(b *strings.Builder, obj map[string]interface{}, indent int) {
	for _, key := range sortedKeys(obj) {
		val := obj[key]
		switch v := val.(type) {
		case map[string]interface{}:
			writeIndent(b, indent)
			b.WriteString(encodeKey(key))
			b.WriteString(":\n")
			encodeObject(b, v, indent+1)
		case []interface{}:
			encodeArray(b, key, v, indent)
		default:
			writeIndent(b, indent)
			b.WriteString(encodeKey(key))
			b.WriteString(": ")
			b.WriteString(formatScalar(v))
			b.WriteByte('\n')
		}
	}
}

// encodeArray picks the densest representation the elements allow:
// inline for all-scalar arrays, tabular for uniform flat objects,
// a dash list otherwise.
func encodeArray(b *strings.Builder, key string, arr []interface{}, indent int) {
	prefix := ""
	if key != "" {
		prefix = encodeKey(key)
	}

	if fields, ok := tabularFields(arr); ok {
		writeIndent(b, indent)
		fmt.Fprintf(b, "%s[%d]{%s}:\n", prefix, len(arr), strings.Join(fields, ","))
		for _, elem := range arr {
			row := elem.(map[string]interface{})
			writeIndent(b, indent+1)
			cells := make([]string, len(fields))
			for i, f := range fields {
				cells[i] = formatScalar(row[f])
			}
			b.WriteString(strings.Join(cells, ","))
			b.WriteByte('\n')
		}
		return
	}

	if allScalars(arr) {
		writeIndent(b, indent)
		cells := make([]string, len(arr))
		for i, elem := range arr {
			cells[i] = formatScalar(elem)
		}
		fmt.Fprintf(b, "%s[%d]: %s\n", prefix, len(arr), strings.Join(cells, ","))
		return
	}

	writeIndent(b, indent)
	fmt.Fprintf(b, "%s[%d]:\n", prefix, len(arr))
	for _, elem := range arr {
		switch v := elem.(type) {
		case map[string]interface{}:
			writeIndent(b, indent+1)
			b.WriteString("-\n")
			encodeObject(b, v, indent+2)
		case []interface{}:
			encodeArray(b, "-", v, indent+1)
		default:
			writeIndent(b, indent+1)
			b.WriteString("- ")
			b.WriteString(formatScalar(v))
			b.WriteByte('\n')
		}
	}
}

// tabularFields reports whether every element is a flat object over
// the same key set, returning those keys in sorted order.
func tabularFields(arr []interface{}) ([]string, bool) {
	if len(arr) == 0 {
		return nil, false
	}
	var fields []string
	for i, elem := range arr {
		obj, ok := elem.(map[string]interface{})
		if !ok || len(obj) == 0 {
			return nil, false
		}
		for _, v := range obj {
			switch v.(type) {
			case map[string]interface{}, []interface{}:
				return nil, false
			}
		}
		keys := sortedKeys(obj)
		if i == 0 {
			fields = keys
			continue
		}
		if len(keys) != len(fields) {
			return nil, false
		}
		for j := range keys {
			if keys[j] != fields[j] {
				return nil, false
			}
		}
	}
	return fields, true
}

func allScalars(arr []interface{}) bool {
	for _, elem := range arr {
		switch elem.(type) {
		case map[string]interface{}, []interface{}:
			return false
		}
	}
	return true
}

func sortedKeys(obj map[string]interface{}) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeIndent(b *strings.Builder, indent int) {
	for i := 0; i < indent; i++ {
		b.WriteString("  ")
	}
}

func encodeKey(key string) string {
	if needsQuoting(key) {
		return strconv.Quote(key)
	}
	return key
}

func formatScalar(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		if needsQuoting(val) {
			return strconv.Quote(val)
		}
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// needsQuoting reports whether s must be quoted to survive a TOON
// round trip: empty strings, delimiter or structural characters,
// surrounding whitespace, and strings that parse as literals.
func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	if strings.TrimSpace(s) != s {
		return true
	}
	if strings.ContainsAny(s, ",:\"\n\r{}[]") {
		return true
	}
	if s == "true" || s == "false" || s == "null" || s == "-" {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}
