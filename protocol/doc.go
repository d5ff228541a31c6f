// File: protocol/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package protocol implements the newline-delimited text protocol served by
// hioload-lines: incremental line framing, request parsing, response framing,
// and the command executor for echo, time and quit.
package protocol
