// Package filemaker implements the FileMaker Data API connector: session
// management, layout and schema discovery, find-payload construction, and
// offset pagination with de-duplication across OR-combined find payloads.
package filemaker
