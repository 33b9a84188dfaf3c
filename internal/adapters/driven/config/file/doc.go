// Package file provides the TOML-file implementation of driven.ConfigStore.
//
// The file mirrors the engine's configuration sections ([language],
// [training], [index], [serialization], [database], [server], [tracing]).
// Relative paths inside it are resolved against the file's directory.
package file
