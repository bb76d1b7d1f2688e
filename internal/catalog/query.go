package catalog

import (
	"fmt"
	"strings"

	"hostintel-bot/internal/common/validation"
)

const maxValueLength = 100

func intPtr(v int) *int { return &v }

// propertyFor maps a param kind to the rule its values must satisfy.
func propertyFor(kind string) validation.Property {
	prop := validation.Property{
		Type:      "string",
		MinLength: intPtr(1),
		MaxLength: intPtr(maxValueLength),
	}
	switch kind {
	case "country":
		prop.Pattern = `^[A-Za-z]{2}$`
		prop.Description = "two-letter country code"
	case "country_or_any":
		prop.Pattern = `^([A-Za-z]{2}|(?i:any))$`
		prop.Description = "two-letter country code or any"
	case "port":
		prop.Pattern = `^([1-9][0-9]{0,3}|[1-5][0-9]{4}|6[0-4][0-9]{3}|65[0-4][0-9]{2}|655[0-2][0-9]|6553[0-5])$`
		prop.Description = "port number between 1 and 65535"
	case "asn":
		prop.Pattern = `^(?i:as)?[0-9]{1,10}$`
		prop.Description = "autonomous system number"
	case "cidr":
		prop.Pattern = `^([0-9]{1,3}(\.[0-9]{1,3}){3}|[0-9A-Fa-f:]+)/[0-9]{1,3}$`
		prop.Description = "network in CIDR notation"
	case "integer":
		prop.Pattern = `^-?[0-9]+$`
		prop.Description = "whole number"
	case "http_status":
		prop.Pattern = `^[1-5][0-9]{2}$`
		prop.Description = "HTTP status code"
	case "cve":
		prop.Pattern = `^(?i:cve)-[0-9]{4}-[0-9]{4,}$`
		prop.Description = "CVE identifier"
	default:
		prop.Description = "free text"
	}
	return prop
}

// Resolve returns the value BuildQuery would use for p, and whether it
// is usable at all.
func Resolve(p Param, values map[string]string) (string, bool) {
	if v := strings.TrimSpace(values[p.Name]); v != "" {
		return v, true
	}
	if p.HasDefault() {
		return p.Default, true
	}
	return "", false
}

// MissingRequired returns the indexes of required params that have
// neither a collected value nor a default.
func (t Template) MissingRequired(values map[string]string) []int {
	var missing []int
	for i, p := range t.Params {
		if _, ok := Resolve(p, values); !ok && p.Required() {
			missing = append(missing, i)
		}
	}
	return missing
}

// BuildQuery substitutes declared placeholders with collected values,
// falling back to defaults. Params flagged in OmitDefault whose value
// equals the default, and optional params with no value, drop their
// whole filter token.
func (t Template) BuildQuery(values map[string]string) (string, error) {
	if missing := t.MissingRequired(values); len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, t.Params[missing[0]].Name)
	}

	drop := make(map[string]bool)
	pairs := make([]string, 0, len(t.Params)*2)
	for _, p := range t.Params {
		v, ok := Resolve(p, values)
		if !ok || (t.omitsDefault(p.Name) && strings.EqualFold(v, p.Default)) {
			drop["{"+p.Name+"}"] = true
			continue
		}
		pairs = append(pairs, "{"+p.Name+"}", sanitize(v))
	}

	tokens := strings.Fields(t.Query)
	kept := tokens[:0]
	for _, tok := range tokens {
		if containsAny(tok, drop) {
			continue
		}
		kept = append(kept, tok)
	}

	query := strings.Join(kept, " ")
	if len(pairs) > 0 {
		query = strings.NewReplacer(pairs...).Replace(query)
	}
	return query, nil
}

func containsAny(token string, placeholders map[string]bool) bool {
	for ph := range placeholders {
		if strings.Contains(token, ph) {
			return true
		}
	}
	return false
}

// sanitize keeps a value from closing the quoted filter it is placed in.
func sanitize(v string) string {
	return strings.TrimSpace(strings.ReplaceAll(v, `"`, ""))
}
