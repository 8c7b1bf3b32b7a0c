// Package checkers provides the built-in checker implementations for each
// validation rule kind.
//
// The file-structure and dependency checkers inspect a local checkout of
// the candidate repository; the install and functional checkers run an
// external command inside it. All checkers locate the checkout through the
// candidate's "checkout_path" metadata key, placed there by the discovery
// source that fetched the repository. A candidate without a checkout fails
// the check rather than passing by default.
package checkers
