package auth

import (
	"context"
	"errors"

	"github.com/bher20/gmeter/internal/storage"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
)

// Adapter implements the Casbin persist.Adapter interface using storage.Storage.
type Adapter struct {
	storage storage.Storage
}

func NewAdapter(s storage.Storage) *Adapter {
	return &Adapter{storage: s}
}

func ruleFrom(ptype string, values []string) storage.CasbinRule {
	r := storage.CasbinRule{PType: ptype}
	fields := []*string{&r.V0, &r.V1, &r.V2, &r.V3, &r.V4, &r.V5}
	for i, v := range values {
		if i < len(fields) {
			*fields[i] = v
		}
	}
	return r
}

func ruleValues(r storage.CasbinRule) []string {
	vals := []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
	n := len(vals)
	for n > 0 && vals[n-1] == "" {
		n--
	}
	return vals[:n]
}

// LoadPolicy loads all policy rules from the storage.
func (a *Adapter) LoadPolicy(m model.Model) error {
	rules, err := a.storage.LoadCasbinRules(context.Background())
	if err != nil {
		return err
	}
	for _, r := range rules {
		if err := persist.LoadPolicyArray(append([]string{r.PType}, ruleValues(r)...), m); err != nil {
			return err
		}
	}
	return nil
}

// SavePolicy is not supported; policies are persisted incrementally through
// AddPolicy and RemovePolicy.
func (a *Adapter) SavePolicy(m model.Model) error {
	return errors.New("auth: SavePolicy not supported, use incremental updates")
}

func (a *Adapter) AddPolicy(sec string, ptype string, rule []string) error {
	return a.storage.AddCasbinRule(context.Background(), ruleFrom(ptype, rule))
}

func (a *Adapter) RemovePolicy(sec string, ptype string, rule []string) error {
	return a.storage.RemoveCasbinRule(context.Background(), ruleFrom(ptype, rule))
}

// RemoveFilteredPolicy removes the rules of ptype whose fields, starting at
// fieldIndex, match the non-empty fieldValues.
func (a *Adapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	ctx := context.Background()
	rules, err := a.storage.LoadCasbinRules(ctx)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if r.PType != ptype || !matchesFilter(r, fieldIndex, fieldValues) {
			continue
		}
		if err := a.storage.RemoveCasbinRule(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func matchesFilter(r storage.CasbinRule, fieldIndex int, fieldValues []string) bool {
	vals := []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
	for i, want := range fieldValues {
		idx := fieldIndex + i
		if want == "" {
			continue
		}
		if idx >= len(vals) || vals[idx] != want {
			return false
		}
	}
	return true
}
