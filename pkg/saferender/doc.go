// Package saferender renders templates behind a contract that never fails
// the caller. Ineligible templates, smoke-test failures and any error or
// panic during substitution are logged as structured events, the template is
// flagged for re-verification where appropriate, and a fixed bilingual
// fallback document is returned instead.
package saferender
