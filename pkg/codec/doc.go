// SPDX-License-Identifier: MPL-2.0

// Package codec implements the compact, self-describing binary encoding used
// for every structured payload stored inside an NCC package.
//
// The wire layout is MessagePack compatible: each value starts with a type
// tag, and the encoder always picks the narrowest tag that can hold the
// value's magnitude or length. Decoding threads an explicit position through
// the input and reports truncated input (ErrIncomplete) separately from
// malformed input (ErrUnknownTag), so that streaming callers can buffer more
// bytes and retry.
package codec
