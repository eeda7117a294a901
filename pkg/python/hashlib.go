// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package python

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"
)

// StrongHashes is the set of hash algorithms that RECORD files are permitted
// to use; md5 and sha1 are deliberately absent.
//
//nolint:gochecknoglobals // Would be 'const'.
var StrongHashes = map[string]func() hash.Hash{
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// RecordHash formats a digest the way RECORD wants it:
// "algo=urlsafe_b64encode_nopad(digest)".
func RecordHash(algo string, sum []byte) string {
	return algo + "=" + base64.RawURLEncoding.EncodeToString(sum)
}

// RecordSHA256 hashes content and formats it for a RECORD row.
func RecordSHA256(content []byte) string {
	sum := sha256.Sum256(content)
	return RecordHash("sha256", sum[:])
}

// ParseRecordHash splits a RECORD hash field into its algorithm and digest.
func ParseRecordHash(field string) (algo string, digest []byte, err error) {
	algo, b64, ok := strings.Cut(field, "=")
	if !ok {
		return "", nil, fmt.Errorf("invalid RECORD hash: %q", field)
	}
	if _, known := StrongHashes[algo]; !known {
		return "", nil, fmt.Errorf("unsupported hash algorithm: %q", algo)
	}
	digest, err = base64.RawURLEncoding.DecodeString(b64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid RECORD hash: %q: %w", field, err)
	}
	return algo, digest, nil
}
