// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archestra-ai/gateway/pkg/types"
)

func TestForProvider_CoversEveryProvider(t *testing.T) {
	for _, p := range types.AllProviders {
		codec, err := ForProvider(p)
		require.NoError(t, err, "provider %s", p)
		assert.Equal(t, p, codec.Provider())
	}
}

func TestForProvider_Unknown(t *testing.T) {
	_, err := ForProvider(types.Provider("grok"))
	assert.Error(t, err)
}
