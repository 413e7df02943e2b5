/*
 * @module service/association/errors
 * @description Error taxonomy of the association rule mining engine
 * @architecture Domain layer - sentinel errors plus typed detail errors
 * @stateFlow validation -> encoding -> mining, each stage may fail with its own error kind
 * @rules Callers match with errors.Is against the sentinels; detail structs carry context
 * @dependencies errors, fmt
 */

package association

import (
	"errors"
	"fmt"
)

// Every message is prefixed with "association: ..." so it can be grepped in logs.
var (
	// ErrEncoding is matched by every *EncodingError.
	ErrEncoding = errors.New("association: encoding failed")

	// ErrInvalidParameter is matched by every *InvalidParameterError.
	ErrInvalidParameter = errors.New("association: invalid parameter")

	// ErrCandidateExplosion is matched by every *CandidateExplosionError.
	ErrCandidateExplosion = errors.New("association: candidate explosion")

	// ErrPredicate is matched by every *PredicateError.
	ErrPredicate = errors.New("association: consequent predicate failed")
)

// EncodingError reports a table that cannot be turned into transactions,
// typically because a selected attribute is not part of the table schema.
type EncodingError struct {
	Attribute string
	Reason    string
}

func (e *EncodingError) Error() string {
	if e.Attribute == "" {
		return fmt.Sprintf("%s: %s", ErrEncoding.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: attribute %q: %s", ErrEncoding.Error(), e.Attribute, e.Reason)
}

// Is makes errors.Is(err, ErrEncoding) true.
func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

// InvalidParameterError reports a threshold or bound outside its valid range.
// It is always raised before any transaction is scanned.
type InvalidParameterError struct {
	Name   string
	Value  interface{}
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("%s: %s=%v: %s", ErrInvalidParameter.Error(), e.Name, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidParameter) true.
func (e *InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameter }

// CandidateExplosionError reports that a mining level produced more candidates
// than the configured ceiling. Raising min_support is the usual remedy.
type CandidateExplosionError struct {
	Level      int // itemset size of the offending candidates
	Candidates int // candidates generated at that level
	Limit      int
}

func (e *CandidateExplosionError) Error() string {
	return fmt.Sprintf("%s: level %d produced %d candidates (limit %d); raise min_support",
		ErrCandidateExplosion.Error(), e.Level, e.Candidates, e.Limit)
}

// Is makes errors.Is(err, ErrCandidateExplosion) true.
func (e *CandidateExplosionError) Is(target error) bool { return target == ErrCandidateExplosion }

// PredicateError reports a consequent predicate that could not decide an item,
// e.g. a script that panicked or ran out of time. The whole run fails.
type PredicateError struct {
	Item Item
	Err  error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("%s: item %q: %v", ErrPredicate.Error(), e.Item, e.Err)
}

// Is makes errors.Is(err, ErrPredicate) true.
func (e *PredicateError) Is(target error) bool { return target == ErrPredicate }

func (e *PredicateError) Unwrap() error { return e.Err }

func invalidParam(name string, value interface{}, reason string) error {
	return &InvalidParameterError{Name: name, Value: value, Reason: reason}
}
