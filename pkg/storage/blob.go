// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// compressThreshold is the blob size above which request/response
// payloads are zstd-compressed at rest.
const compressThreshold = 4 << 10

// zstdMagic is the zstd frame header. JSON payloads always start with
// a printable byte, so the prefix unambiguously marks compressed rows.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	blobEncoder, _ = zstd.NewWriter(nil)
	blobDecoder, _ = zstd.NewReader(nil)
)

// sealBlob compresses data when it is large enough to be worth it.
func sealBlob(data []byte) []byte {
	if len(data) < compressThreshold {
		return data
	}
	return blobEncoder.EncodeAll(data, nil)
}

// openBlob reverses sealBlob.
func openBlob(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	out, err := blobDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing stored blob: %w", err)
	}
	return out, nil
}
