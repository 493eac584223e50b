// Package mcp exposes the memory engine as Model Context Protocol tools
// over stdio: memory_capture, memory_search, memory_get and memory_sync.
package mcp
