package kv

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/slok/devagent/internal/model"
)

var keyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseRequirements parses `key=value` specs into service requirements.
// A repeated key becomes a list of values in the given order, a bare `key` takes
// the value of the environment variable with the same name.
func ParseRequirements(specs []string) (model.Requirements, error) {
	req := make(model.Requirements, len(specs))

	for _, spec := range specs {
		if spec == "" {
			return nil, fmt.Errorf("requirement spec cannot be empty")
		}

		key, value, ok := strings.Cut(spec, "=")
		if !keyRegexp.MatchString(key) {
			return nil, fmt.Errorf("invalid requirement key %q", key)
		}

		if !ok {
			value, ok = os.LookupEnv(key)
			if !ok {
				return nil, fmt.Errorf("environment variable %q is not set", key)
			}
		}

		switch v := req[key].(type) {
		case nil:
			req[key] = value
		case string:
			req[key] = []string{v, value}
		case []string:
			req[key] = append(v, value)
		}
	}

	return req, nil
}
