// SPDX-License-Identifier: MPL-2.0

// Package cueutil decodes CUE documents against an embedded schema.
//
// Parsing has three steps:
//
//  1. Compile the schema and look up its root definition
//  2. Compile the document and unify it with that definition
//  3. Validate the result and decode it into a Go value
//
// Decoding follows the json tags of the target type.
//
//	//go:embed project_schema.cue
//	var schema []byte
//
//	res, err := cueutil.ParseAndDecode[Configuration](schema, data, "#Project",
//	    cueutil.WithFilename("project.cue"))
package cueutil
