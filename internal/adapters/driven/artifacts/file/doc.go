// Package file persists build artifacts as individual files.
//
// Each file holds a fixed envelope followed by the payload:
//
//	[4B magic "TMAF"] [4B header length] [msgpack header] [payload]
//
// The header records the artifact kind, format version, build id, the
// fingerprint of the upstream input, and the SHA-256 of the payload, which
// is verified on every load. Writes go to a temporary file that is renamed
// into place, so a crashed build never leaves a truncated artifact.
package file
