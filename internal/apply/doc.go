// Package apply consumes operations broadcast by peers and applies the
// ones that win. Deliveries may arrive duplicated, reordered or late;
// the version store's compare-and-commit makes every application
// idempotent, so discarding losers silently is the common, safe case.
package apply
