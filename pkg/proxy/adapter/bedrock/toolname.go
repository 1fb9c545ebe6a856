// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package bedrock

import "strings"

// Nova models reject hyphens in tool names, so names are encoded to
// underscores on dispatch and decoded in every outbound event. The
// per-request map keeps the round trip lossless: the name a client
// declared is the name it gets back.

// novaModel reports whether the model id needs tool-name encoding.
func novaModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "nova")
}

// encodeToolName replaces hyphens with underscores.
func encodeToolName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// buildToolNameMap maps encoded → original for the declared tools.
func buildToolNameMap(names []string) map[string]string {
	m := make(map[string]string, len(names))
	for _, name := range names {
		m[encodeToolName(name)] = name
	}
	return m
}

// decodeToolName maps an encoded name back to the client's original.
// Unknown names pass through unchanged.
func decodeToolName(nameMap map[string]string, encoded string) string {
	if original, ok := nameMap[encoded]; ok {
		return original
	}
	return encoded
}
