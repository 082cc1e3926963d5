package governance

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sentineld/sentineld/pkg/types"
)

// yamlPolicy is the on-disk shape of one risk-level entry. Operators edit
// this file to override the default strictest-first mapping without a
// rebuild (SPEC_FULL.md §3).
type yamlPolicy struct {
	RiskLevel           string   `yaml:"riskLevel"`
	Authority           string   `yaml:"authority"`
	AuditRequired       bool     `yaml:"auditRequired"`
	MaxAutoApproveValue *float64 `yaml:"maxAutoApproveValue"`
}

type yamlDocument struct {
	Policies []yamlPolicy `yaml:"policies"`
}

// LoadPolicyTable reads a YAML policy-table file from path, falling back to
// DefaultTable for any risk level the file does not mention.
func LoadPolicyTable(path string) (map[types.RiskLevel]types.GovernancePolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("governance: read policy table %s: %w", path, err)
	}
	var doc yamlDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("governance: parse policy table %s: %w", path, err)
	}

	table := DefaultTable()
	for _, p := range doc.Policies {
		table[types.RiskLevel(p.RiskLevel)] = types.GovernancePolicy{
			RiskLevel:           types.RiskLevel(p.RiskLevel),
			Authority:           types.Authority(p.Authority),
			AuditRequired:       p.AuditRequired,
			MaxAutoApproveValue: p.MaxAutoApproveValue,
		}
	}
	return table, nil
}
