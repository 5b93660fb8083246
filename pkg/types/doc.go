// Package types defines the schema model, staging containers, mapping
// definitions, the Store interface, and the standard errors for relmap.
//
// A Schema declares tables and renders their CREATE statements. Records,
// RecordGroups and RecordSets stage rows keyed by identity on their way to
// or from a Store. A Mapping describes how named object types correspond to
// tables, nested objects and child lists.
package types
