package authorization

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Wildcard matches any resource or permission
const Wildcard = "*"

// Rules maps role -> resource -> granted permissions
// Example:
//
//	roles:
//	  administrator:
//	    "*": ["*"]
//	  editor:
//	    study: [read, create, update]
type Rules map[string]map[string][]string

type rulesFile struct {
	Roles Rules `yaml:"roles"`
}

// ParseRules decodes an ACL rules document
func ParseRules(data []byte) (Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse ACL rules: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("ACL rules define no roles")
	}
	return f.Roles, nil
}

// LoadRules reads an ACL rules file
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ACL rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// Allows reports whether any of roles grants permission on resource
func (r Rules) Allows(roles []string, resource, permission string) bool {
	for _, role := range roles {
		resources := r[role]
		for _, key := range []string{resource, Wildcard} {
			for _, p := range resources[key] {
				if p == permission || p == Wildcard {
					return true
				}
			}
		}
	}
	return false
}
