package pos

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed strategies.yaml
var defaultStrategies []byte

const (
	ContinueNotFound  = "not_found"
	ContinueEmpty     = "empty"
	ContinueTransient = "transient"
	ContinueError     = "error"

	PayloadStorage = "storage"
	PayloadGeneric = "generic"
)

// Strategy is one API method attempt inside a fallback chain.
type Strategy struct {
	Name       string            `yaml:"name"`
	Method     string            `yaml:"method"`
	Params     map[string]string `yaml:"params"`
	Payload    string            `yaml:"payload"`
	ContinueOn []string          `yaml:"continue_on"`
}

func (s Strategy) continues(outcome string) bool {
	return slices.Contains(s.ContinueOn, outcome) || (outcome != ContinueEmpty && slices.Contains(s.ContinueOn, ContinueError))
}

type Strategies struct {
	Suppliers    []Strategy `yaml:"suppliers"`
	Products     []Strategy `yaml:"products"`
	CreateSupply []Strategy `yaml:"create_supply"`
}

// LoadStrategies returns the built-in chains, with any group present in the
// override file replacing the built-in group of the same name.
func LoadStrategies(path string) (Strategies, error) {
	var out Strategies
	if err := yaml.Unmarshal(defaultStrategies, &out); err != nil {
		return Strategies{}, fmt.Errorf("parse built-in strategies: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return out, out.validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Strategies{}, fmt.Errorf("read strategies file: %w", err)
	}
	var override Strategies
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Strategies{}, fmt.Errorf("parse strategies file %s: %w", path, err)
	}
	if len(override.Suppliers) > 0 {
		out.Suppliers = override.Suppliers
	}
	if len(override.Products) > 0 {
		out.Products = override.Products
	}
	if len(override.CreateSupply) > 0 {
		out.CreateSupply = override.CreateSupply
	}
	return out, out.validate()
}

func (s Strategies) validate() error {
	groups := map[string][]Strategy{
		"suppliers":     s.Suppliers,
		"products":      s.Products,
		"create_supply": s.CreateSupply,
	}
	for group, chain := range groups {
		if len(chain) == 0 {
			return fmt.Errorf("strategy group %s is empty", group)
		}
		for _, st := range chain {
			if strings.TrimSpace(st.Method) == "" {
				return fmt.Errorf("strategy %q in %s has no method", st.Name, group)
			}
			for _, c := range st.ContinueOn {
				switch c {
				case ContinueNotFound, ContinueEmpty, ContinueTransient, ContinueError:
				default:
					return fmt.Errorf("strategy %q: unknown continue_on %q", st.Name, c)
				}
			}
		}
	}
	for _, st := range s.CreateSupply {
		switch st.Payload {
		case PayloadStorage, PayloadGeneric:
		default:
			return fmt.Errorf("create_supply strategy %q: payload must be storage or generic", st.Name)
		}
	}
	return nil
}
