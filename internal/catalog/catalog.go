// Package catalog lists the subjects and topics a learner can pick from and
// the scope labels a quiz may be tagged with.
package catalog

import (
	"strings"

	"github.com/pavelanni/edulingo/internal/model"
)

// Subject is a group of practice topics.
type Subject struct {
	Name   string   `json:"name" mapstructure:"name"`
	Topics []string `json:"topics" mapstructure:"topics"`
}

// Catalog is the configured subject list plus the accepted scope keys.
type Catalog struct {
	Subjects  []Subject `json:"subjects" mapstructure:"subjects"`
	ScopeKeys []string  `json:"scopeKeys" mapstructure:"scope-keys"`
}

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{
		Subjects: []Subject{
			{Name: "Physics", Topics: []string{"Kinematics", "Thermodynamics", "Optics"}},
			{Name: "Chemistry", Topics: []string{"Organic", "Inorganic", "Physical"}},
			{Name: "Math", Topics: []string{"Algebra", "Calculus", "Probability"}},
			{Name: "GS", Topics: []string{"Polity", "Economy", "Geography", "Capitals"}},
		},
		ScopeKeys: []string{"grade", "examType"},
	}
}

// Subject returns the subject called name, matched case-insensitively.
func (c Catalog) Subject(name string) (Subject, bool) {
	name = strings.TrimSpace(name)
	for _, s := range c.Subjects {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Subject{}, false
}

// SubjectOf returns the first subject that lists topic.
func (c Catalog) SubjectOf(topic string) (string, bool) {
	topic = strings.TrimSpace(topic)
	for _, s := range c.Subjects {
		for _, t := range s.Topics {
			if strings.EqualFold(t, topic) {
				return s.Name, true
			}
		}
	}
	return "", false
}

// Has reports whether subject lists topic.
func (c Catalog) Has(subject, topic string) bool {
	s, ok := c.Subject(subject)
	if !ok {
		return false
	}
	topic = strings.TrimSpace(topic)
	for _, t := range s.Topics {
		if strings.EqualFold(t, topic) {
			return true
		}
	}
	return false
}

// FilterScope keeps the labels whose key is configured and whose value is
// non-empty. It returns nil when nothing is left.
func (c Catalog) FilterScope(labels map[string]string) model.ScopeLabels {
	var out model.ScopeLabels
	for _, k := range c.ScopeKeys {
		v := strings.TrimSpace(labels[k])
		if v == "" {
			continue
		}
		if out == nil {
			out = make(model.ScopeLabels)
		}
		out[k] = v
	}
	return out
}

// Valid reports whether the catalog has at least one subject with a topic.
func (c Catalog) Valid() bool {
	for _, s := range c.Subjects {
		if strings.TrimSpace(s.Name) != "" && len(s.Topics) > 0 {
			return true
		}
	}
	return false
}
