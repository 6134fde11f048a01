// Package vm implements the Nagini virtual machine.
//
// This package contains:
//   - The value model: immediates (int, float, str, bool, None) and heap objects
//   - Classes with C3 method resolution and dunder dispatch
//   - The bytecode interpreter, with exception tables built from block ops
//   - Generators and coroutines as resumable frames
//   - A single-threaded event loop for async code
//   - The builtins namespace and the native math module
package vm
