// Package recipe defines the pluggable group → [serviceName] source
// named in spec.md §1/§4.3/§9 as an external collaborator, and supplies
// one concrete implementation grounded in
// original_source/src/justfile.rs: shelling out to
// `just --dump --dump-format json` and filtering recipes whose "group"
// attribute matches.
package recipe

// Recipes resolves a group name to the service names that belong to it.
// It is the sole seam between the daemon and whatever recipe file format
// a deployment uses; the daemon core never parses a recipe file itself.
type Recipes interface {
	GroupRecipes(group string) ([]string, error)
}
