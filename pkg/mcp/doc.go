// Package mcp speaks the Model Context Protocol to tool servers over stdio
// JSON-RPC. Discovered tools are registered with remote provenance, so a
// native or provider tool of the same name always shadows them.
package mcp
