// Package assembly selects the template variant that matches a set of answers,
// filters its sections by their include and exclude rules, and substitutes
// answers into the resulting text.
//
// Variant selection is first-match in declared order. Configuration authors
// rely on that ordering, so nothing here sorts or scores variants.
package assembly
