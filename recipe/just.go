package recipe

import (
	"encoding/json"
	"fmt"
	"os/exec"
)

// Just implements Recipes by invoking the `just` command-runner, the
// same recipe tool original_source/src/justfile.rs targets. Each recipe
// may carry a `group` attribute; GroupRecipes returns the names of every
// recipe whose group attribute equals the requested group.
type Just struct {
	// Exe overrides the executable name, for tests. Empty means "just".
	Exe string
}

type justDump struct {
	Recipes map[string]justRecipe `json:"recipes"`
}

type justRecipe struct {
	Name       string              `json:"name"`
	Attributes []map[string]string `json:"attributes"`
}

// GroupRecipes shells out to `just --dump --dump-format json` and
// returns the names of recipes tagged with the given group.
func (j Just) GroupRecipes(group string) ([]string, error) {
	exe := j.Exe
	if exe == "" {
		exe = "just"
	}

	out, err := exec.Command(exe, "--dump", "--dump-format", "json").Output()
	if err != nil {
		return nil, fmt.Errorf("recipe: %s --dump: %w", exe, err)
	}

	var dump justDump
	if err := json.Unmarshal(out, &dump); err != nil {
		return nil, fmt.Errorf("recipe: parse dump: %w", err)
	}

	var names []string
	for _, r := range dump.Recipes {
		for _, attr := range r.Attributes {
			if g, ok := attr["group"]; ok && g == group {
				names = append(names, r.Name)
				break
			}
		}
	}
	return names, nil
}
