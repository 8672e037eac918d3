// Package maven understands the Maven 2 repository layout: it turns request
// paths into artifact coordinates, classifies checksum/signature/metadata
// files, orders versions the way Maven does, and merges maven-metadata.xml
// documents coming from several upstream repositories. The package is pure
// (no I/O besides io.Reader decoding) so both the proxy handler and module
// hooks can depend on it without pulling in HTTP or cache concerns.
package maven
