// Package validation executes configurable, weighted rules against queued
// candidates and turns the outcomes into an admission decision and a
// quality score.
//
// The engine knows nothing about what individual checks do. Each rule kind
// maps to a Checker in a registry; the engine's contract with a checker is
// {criteria, candidate} in, {passed, details, error} out. Checkers that
// error or exceed the per-rule timeout fail closed: the rule counts as
// failed and evaluation continues with the remaining rules.
package validation
