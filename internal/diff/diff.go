// Package diff compares two facts documents and reports which gateways
// were added, removed, or changed between them. Comparison is structural:
// documents are parsed back into generic trees and walked field by field,
// so the report names the exact paths that differ.
package diff

import (
	"fmt"
	"reflect"
	"sort"

	"gopkg.in/yaml.v3"
)

// Change records a single field-level difference within one gateway.
type Change struct {
	Path string `json:"path"`
	From any    `json:"from"`
	To   any    `json:"to"`
}

// GatewayDelta groups the changes observed for one gateway.
type GatewayDelta struct {
	Name    string   `json:"name"`
	Changes []Change `json:"changes"`
}

// Report is the result of comparing two facts documents.
type Report struct {
	Added     []string       `json:"added"`
	Removed   []string       `json:"removed"`
	Changed   []GatewayDelta `json:"changed"`
	Unchanged int            `json:"unchanged"`
}

// Empty reports whether the two documents were equivalent.
func (r *Report) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Changed) == 0
}

// Summary returns a one-line description of the report.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d added, %d removed, %d changed, %d unchanged",
		len(r.Added), len(r.Removed), len(r.Changed), r.Unchanged)
}

type document struct {
	ExternalGateway []map[string]any `yaml:"external_gateway"`
}

// Compare parses two facts documents and diffs them gateway by gateway.
// Gateways are matched by name; order within the documents is ignored.
func Compare(older, newer []byte) (*Report, error) {
	oldDoc, err := parse(older)
	if err != nil {
		return nil, fmt.Errorf("parsing older document: %w", err)
	}
	newDoc, err := parse(newer)
	if err != nil {
		return nil, fmt.Errorf("parsing newer document: %w", err)
	}

	report := &Report{}
	for name := range newDoc {
		if _, ok := oldDoc[name]; !ok {
			report.Added = append(report.Added, name)
		}
	}
	for name, oldGW := range oldDoc {
		newGW, ok := newDoc[name]
		if !ok {
			report.Removed = append(report.Removed, name)
			continue
		}

		var changes []Change
		diffValue("", oldGW, newGW, &changes)
		if len(changes) == 0 {
			report.Unchanged++
			continue
		}
		report.Changed = append(report.Changed, GatewayDelta{Name: name, Changes: changes})
	}

	sort.Strings(report.Added)
	sort.Strings(report.Removed)
	sort.Slice(report.Changed, func(i, j int) bool {
		return report.Changed[i].Name < report.Changed[j].Name
	})
	return report, nil
}

func parse(data []byte) (map[string]map[string]any, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	byName := make(map[string]map[string]any, len(doc.ExternalGateway))
	for _, gw := range doc.ExternalGateway {
		name, _ := gw["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("gateway entry without a name")
		}
		byName[name] = gw
	}
	return byName, nil
}

// diffValue walks two values in lockstep and appends a Change for every
// leaf that differs. Maps are compared over the union of their keys,
// sequences element by element.
func diffValue(path string, from, to any, out *[]Change) {
	if reflect.DeepEqual(from, to) {
		return
	}

	fromMap, fromIsMap := from.(map[string]any)
	toMap, toIsMap := to.(map[string]any)
	if fromIsMap && toIsMap {
		for _, key := range unionKeys(fromMap, toMap) {
			diffValue(childPath(path, key), fromMap[key], toMap[key], out)
		}
		return
	}

	fromSeq, fromIsSeq := from.([]any)
	toSeq, toIsSeq := to.([]any)
	if fromIsSeq && toIsSeq {
		n := len(fromSeq)
		if len(toSeq) < n {
			n = len(toSeq)
		}
		for i := 0; i < n; i++ {
			diffValue(fmt.Sprintf("%s[%d]", path, i), fromSeq[i], toSeq[i], out)
		}
		for i := n; i < len(fromSeq); i++ {
			*out = append(*out, Change{Path: fmt.Sprintf("%s[%d]", path, i), From: fromSeq[i], To: nil})
		}
		for i := n; i < len(toSeq); i++ {
			*out = append(*out, Change{Path: fmt.Sprintf("%s[%d]", path, i), From: nil, To: toSeq[i]})
		}
		return
	}

	*out = append(*out, Change{Path: path, From: from, To: to})
}

func childPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
