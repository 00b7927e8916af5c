// Package middleware wraps a ports.KVStore with encryption at rest and
// snapshot redaction.
package middleware
