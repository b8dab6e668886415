package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"conformity-backend/internal/textnorm"
)

// Profile IDs shipped in the embedded catalogue.
const (
	ProfileGeneralist = "sst-generalista"
	ProfilePort       = "sst-portuario"
)

// signalWindow is how many runes of the document are scanned for keywords.
const signalWindow = 12000

//go:embed profiles.yaml
var defaultCatalogue []byte

// Profile is a named set of system-prompt rules selected by document domain.
type Profile struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Focus   string   `yaml:"focus"`
	Rules   []string `yaml:"rules"`
	Signals Signals  `yaml:"signals"`
}

// Signals trigger a profile when any keyword appears in the scanned text or
// any norm code is among the applicable norms.
type Signals struct {
	Keywords []string `yaml:"keywords"`
	Norms    []string `yaml:"norms"`
}

// Catalogue is the ordered list of profiles plus the fallback ID.
type Catalogue struct {
	Default  string    `yaml:"default"`
	Profiles []Profile `yaml:"profiles"`
}

// LoadCatalogue parses a YAML profile catalogue.
func LoadCatalogue(data []byte) (Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalogue{}, fmt.Errorf("parse profiles: %w", err)
	}
	if len(c.Profiles) == 0 {
		return Catalogue{}, fmt.Errorf("parse profiles: no profiles defined")
	}
	if _, ok := c.byID(c.Default); !ok {
		return Catalogue{}, fmt.Errorf("parse profiles: default profile %q not defined", c.Default)
	}
	return c, nil
}

// DefaultCatalogue returns the embedded catalogue.
func DefaultCatalogue() Catalogue {
	c, err := LoadCatalogue(defaultCatalogue)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Catalogue) byID(id string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// Select picks the first profile with a matching signal, or the default.
func (c Catalogue) Select(documentType, document string, norms []string) Profile {
	text := textnorm.Fold(documentType + "\n" + textnorm.Prefix(document, signalWindow))
	normSet := make(map[string]struct{}, len(norms))
	for _, n := range norms {
		normSet[textnorm.Fold(n)] = struct{}{}
	}

	for _, p := range c.Profiles {
		if p.matches(text, normSet) {
			return p
		}
	}
	p, _ := c.byID(c.Default)
	return p
}

func (p Profile) matches(foldedText string, norms map[string]struct{}) bool {
	for _, n := range p.Signals.Norms {
		if _, ok := norms[textnorm.Fold(n)]; ok {
			return true
		}
	}
	for _, kw := range p.Signals.Keywords {
		if containsFold(foldedText, kw) {
			return true
		}
	}
	return false
}

func containsFold(foldedText, keyword string) bool {
	k := textnorm.Fold(keyword)
	return k != "" && strings.Contains(foldedText, k)
}
