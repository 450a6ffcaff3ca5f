// Package verification gates templates for production use.
//
// A verification attempt smoke-tests and lints the current body, collects
// blockers, and either moves the template to VERIFIED (recording the content
// hash, verification time and variable cache) or to BLOCKED. Each attempt
// appends an immutable report in the same store write as the state change.
//
// Structural failures (empty body, unbalanced braces) always block. Content
// quality blockers (placeholders, undeclared, suspicious or unused required
// variables, oversized bodies) block unless the caller forces the attempt.
package verification
