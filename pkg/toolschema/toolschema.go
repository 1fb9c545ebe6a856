// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package toolschema validates the JSON Schemas that clients declare
// for their tools. Validation is advisory: an invalid schema is logged
// and the definition is persisted anyway, so a sloppy client never
// loses a request over it.
package toolschema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/archestra-ai/gateway/pkg/types"
)

// Validate checks that the definition's input schema compiles as a
// JSON Schema. A nil schema is valid (tools without parameters).
func Validate(def types.ToolDefinition) error {
	if def.InputSchema == nil {
		return nil
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema)); err != nil {
		return fmt.Errorf("tool %q: input schema does not compile: %w", def.Name, err)
	}
	return nil
}
