// Package taxonomy gives every terminal failure in the pipeline a stable,
// typed classification instead of string-matching errors at call sites,
// mirroring the teacher's model.ReasonCode idiom (spec §7).
package taxonomy

import "errors"

// Class is the error taxonomy from spec §7.
type Class string

const (
	ClassTransient Class = "transient" // network blip, lock contention, decoder stall
	ClassTruncated Class = "truncated" // decoder ended before source duration
	ClassPoison    Class = "poison"    // repeated failure, retry_count exhausted
	ClassDesync    Class = "desync"    // frame/PTS pairing contract violated
	ClassConfig    Class = "config"    // schema mismatch, unreachable database
	ClassCorrupt   Class = "corrupt"   // source cannot be decoded
)

// Tagged wraps an error with a Class so callers can route it without
// string matching.
type Tagged struct {
	Class Class
	Err   error
}

func (t *Tagged) Error() string { return t.Err.Error() }
func (t *Tagged) Unwrap() error { return t.Err }

// Tag wraps err with the given class. A nil err returns nil.
func Tag(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &Tagged{Class: class, Err: err}
}

// ClassOf extracts the Class from a tagged error, defaulting to
// ClassTransient for untagged errors (the safe default: retry rather than
// poison or abort).
func ClassOf(err error) Class {
	var t *Tagged
	if errors.As(err, &t) {
		return t.Class
	}
	return ClassTransient
}

// IsFatal reports whether the class should abort the whole worker process
// immediately rather than being handled per-asset.
func IsFatal(class Class) bool {
	return class == ClassConfig
}

// IsRetryable reports whether the class is eligible for the normal
// retry-count-then-poison path (as opposed to being fatal to the worker).
func IsRetryable(class Class) bool {
	switch class {
	case ClassTransient, ClassTruncated, ClassDesync, ClassCorrupt:
		return true
	default:
		return false
	}
}
