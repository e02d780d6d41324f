// Package items implements the Item entity (§3): its content blob,
// references, app-data, dirty-state bookkeeping, content equality and the
// predicate language used by the singleton resolver and applications.
//
// Back-references ("referencingObjects") are stored on the Item but are
// owned and mutated exclusively by package store; nothing in this package
// populates them on its own.
package items
