// Package catalog holds the static registry of query templates.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"hostintel-bot/internal/common/validation"

	"gopkg.in/yaml.v3"
)

var (
	ErrTemplateNotFound = errors.New("TEMPLATE_NOT_FOUND")
	ErrCategoryNotFound = errors.New("CATEGORY_NOT_FOUND")
	ErrMissingParam     = errors.New("MISSING_REQUIRED_PARAM")
	ErrParamIndex       = errors.New("PARAM_INDEX_OUT_OF_RANGE")
	ErrInvalidCatalog   = errors.New("INVALID_CATALOG")
)

//go:embed catalog.yaml
var defaultCatalog []byte

//go:embed catalog.schema.json
var catalogSchema string

var placeholderRe = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

type Category struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Emoji string `yaml:"emoji"`
	Order int    `yaml:"order"`
}

// Label is the display text used on menus.
func (c Category) Label() string {
	if c.Emoji == "" {
		return c.Name
	}
	return c.Emoji + " " + c.Name
}

type Param struct {
	Name     string `yaml:"name"`
	Prompt   string `yaml:"prompt"`
	Default  string `yaml:"default"`
	Kind     string `yaml:"kind"`
	Optional bool   `yaml:"optional"`
}

func (p Param) Required() bool { return !p.Optional }

func (p Param) HasDefault() bool { return p.Default != "" }

type Template struct {
	ID          string   `yaml:"id"`
	Category    string   `yaml:"category"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Emoji       string   `yaml:"emoji"`
	Query       string   `yaml:"query"`
	Example     string   `yaml:"example"`
	Facets      string   `yaml:"facets"`
	Tags        []string `yaml:"tags"`
	// OmitDefault lists params whose whole filter is dropped from the
	// query when the value equals the param default.
	OmitDefault []string `yaml:"omit_default"`
	Params      []Param  `yaml:"params"`
}

func (t Template) omitsDefault(name string) bool {
	for _, n := range t.OmitDefault {
		if n == name {
			return true
		}
	}
	return false
}

type document struct {
	Categories []Category `yaml:"categories"`
	Templates  []Template `yaml:"templates"`
}

// Catalog is immutable after Load and safe for concurrent use.
type Catalog struct {
	categories []Category
	byCategory map[string][]Template
	byID       map[string]Template
	order      []string
	validators map[string][]*validation.ValueValidator
}

// Load parses the catalog shipped with the binary.
func Load() (*Catalog, error) {
	return Parse(defaultCatalog)
}

func Parse(data []byte) (*Catalog, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	result, err := validation.ValidateDocument(catalogSchema, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, result.Messages())
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return build(doc)
}

func build(doc document) (*Catalog, error) {
	c := &Catalog{
		byCategory: make(map[string][]Template),
		byID:       make(map[string]Template),
		validators: make(map[string][]*validation.ValueValidator),
	}

	known := make(map[string]bool, len(doc.Categories))
	for _, cat := range doc.Categories {
		if known[cat.ID] {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidCatalog, cat.ID)
		}
		known[cat.ID] = true
		c.categories = append(c.categories, cat)
	}
	sort.SliceStable(c.categories, func(i, j int) bool {
		return c.categories[i].Order < c.categories[j].Order
	})

	for _, tpl := range doc.Templates {
		if _, dup := c.byID[tpl.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate template %q", ErrInvalidCatalog, tpl.ID)
		}
		if !known[tpl.Category] {
			return nil, fmt.Errorf("%w: template %q uses unknown category %q", ErrInvalidCatalog, tpl.ID, tpl.Category)
		}
		if err := checkPlaceholders(tpl); err != nil {
			return nil, err
		}

		validators := make([]*validation.ValueValidator, len(tpl.Params))
		for i, p := range tpl.Params {
			v, err := validation.NewValueValidator(p.Name, propertyFor(p.Kind))
			if err != nil {
				return nil, fmt.Errorf("%w: template %q: %v", ErrInvalidCatalog, tpl.ID, err)
			}
			if p.HasDefault() && !v.Validate(p.Default).Valid {
				return nil, fmt.Errorf("%w: template %q: default %q for %s fails its own rule", ErrInvalidCatalog, tpl.ID, p.Default, p.Name)
			}
			validators[i] = v
		}

		c.byID[tpl.ID] = tpl
		c.order = append(c.order, tpl.ID)
		c.byCategory[tpl.Category] = append(c.byCategory[tpl.Category], tpl)
		c.validators[tpl.ID] = validators
	}

	return c, nil
}

func checkPlaceholders(tpl Template) error {
	declared := make(map[string]bool, len(tpl.Params))
	for _, p := range tpl.Params {
		if declared[p.Name] {
			return fmt.Errorf("%w: template %q declares %s twice", ErrInvalidCatalog, tpl.ID, p.Name)
		}
		declared[p.Name] = true
	}

	used := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(tpl.Query, -1) {
		if !declared[m[1]] {
			return fmt.Errorf("%w: template %q uses undeclared placeholder {%s}", ErrInvalidCatalog, tpl.ID, m[1])
		}
		used[m[1]] = true
	}
	for name := range declared {
		if !used[name] {
			return fmt.Errorf("%w: template %q never uses param %s", ErrInvalidCatalog, tpl.ID, name)
		}
	}
	for _, name := range tpl.OmitDefault {
		if !declared[name] {
			return fmt.Errorf("%w: template %q omit_default names unknown param %s", ErrInvalidCatalog, tpl.ID, name)
		}
	}
	return nil
}

// Categories returns every category in display order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

func (c *Catalog) Category(id string) (Category, error) {
	for _, cat := range c.categories {
		if cat.ID == id {
			return cat, nil
		}
	}
	return Category{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
}

// Templates lists a category's templates in declaration order. Unknown
// categories yield an empty list.
func (c *Catalog) Templates(category string) []Template {
	src := c.byCategory[category]
	out := make([]Template, len(src))
	copy(out, src)
	return out
}

func (c *Catalog) Template(id string) (Template, error) {
	tpl, ok := c.byID[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tpl, nil
}

// Len is the number of templates.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Search matches keyword case-insensitively against name, description
// and tags.
func (c *Catalog) Search(keyword string) []Template {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil
	}

	var out []Template
	for _, id := range c.order {
		tpl := c.byID[id]
		if strings.Contains(strings.ToLower(tpl.Name), keyword) ||
			strings.Contains(strings.ToLower(tpl.Description), keyword) ||
			tagMatches(tpl.Tags, keyword) {
			out = append(out, tpl)
		}
	}
	return out
}

func tagMatches(tags []string, keyword string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), keyword) {
			return true
		}
	}
	return false
}

// ValidateParam checks value against the rule of the index-th param.
func (c *Catalog) ValidateParam(templateID string, index int, value string) (*validation.ValidationResult, error) {
	validators, ok := c.validators[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}
	if index < 0 || index >= len(validators) {
		return nil, fmt.Errorf("%w: %d", ErrParamIndex, index)
	}
	return validators[index].Validate(value), nil
}
