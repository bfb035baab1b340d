package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/requisition-service/internal/domain"
)

// approvalRulesFile is the on-disk shape of the rule seed file:
//
//	rules:
//	  - name: small purchases
//	    min_amount: "0"
//	    max_amount: "1000"
//	    approvers: [MANAGER]
//	  - name: engineering capex
//	    min_amount: "5000"
//	    department_id: 3f0c...
//	    approvers: [MANAGER, FINANCE, ADMIN]
type approvalRulesFile struct {
	Rules []approvalRuleEntry `yaml:"rules"`
}

type approvalRuleEntry struct {
	Name         string   `yaml:"name"`
	MinAmount    string   `yaml:"min_amount"`
	MaxAmount    string   `yaml:"max_amount"`
	DepartmentID string   `yaml:"department_id"`
	Approvers    []string `yaml:"approvers"`
}

// LoadApprovalRules reads and validates the YAML rule seed file at path.
func LoadApprovalRules(path string) ([]domain.ApprovalRule, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read approval rules: %w", err)
	}
	return ParseApprovalRules(content)
}

// ParseApprovalRules decodes rule definitions from YAML.
func ParseApprovalRules(content []byte) ([]domain.ApprovalRule, error) {
	var file approvalRulesFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("decode approval rules: %w", err)
	}

	rules := make([]domain.ApprovalRule, 0, len(file.Rules))
	for i, entry := range file.Rules {
		rule, err := entry.toDomain()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, entry.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (e approvalRuleEntry) toDomain() (domain.ApprovalRule, error) {
	rule := domain.ApprovalRule{Name: strings.TrimSpace(e.Name)}

	minRaw := strings.TrimSpace(e.MinAmount)
	if minRaw == "" {
		minRaw = "0"
	}
	minAmount, err := decimal.NewFromString(minRaw)
	if err != nil {
		return rule, fmt.Errorf("invalid min_amount: %w", err)
	}
	if minAmount.IsNegative() {
		return rule, fmt.Errorf("min_amount must not be negative")
	}
	rule.MinAmount = minAmount

	if raw := strings.TrimSpace(e.MaxAmount); raw != "" {
		maxAmount, err := decimal.NewFromString(raw)
		if err != nil {
			return rule, fmt.Errorf("invalid max_amount: %w", err)
		}
		if maxAmount.LessThan(minAmount) {
			return rule, fmt.Errorf("max_amount %s below min_amount %s", maxAmount, minAmount)
		}
		rule.MaxAmount = &maxAmount
	}

	if dept := strings.TrimSpace(e.DepartmentID); dept != "" {
		rule.DepartmentID = &dept
	}

	if len(e.Approvers) == 0 {
		return rule, fmt.Errorf("at least one approver role is required")
	}
	seen := make(map[domain.Role]struct{}, len(e.Approvers))
	for _, raw := range e.Approvers {
		role := domain.Role(strings.ToUpper(strings.TrimSpace(raw)))
		if !role.Valid() {
			return rule, fmt.Errorf("unknown approver role %q", raw)
		}
		if _, dup := seen[role]; dup {
			return rule, fmt.Errorf("approver role %s listed twice", role)
		}
		seen[role] = struct{}{}
		rule.RequiredApprovers = append(rule.RequiredApprovers, role)
	}
	return rule, nil
}
