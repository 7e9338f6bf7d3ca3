package reconcile

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

// forms tracks DOM properties that have no attribute representation: the
// live value of inputs, checkedness and option selection.
//
// value on input/select/textarea is deferred. It is applied once the element
// and its children are in place, because a select cannot take a value before
// the matching option exists.
type forms struct {
	values       map[*html.Node]string
	checked      map[*html.Node]bool
	selected     map[*html.Node]bool
	deferred     map[*html.Node]*string
	selectValues map[*html.Node]*string
}

func newForms() *forms {
	return &forms{
		values:       make(map[*html.Node]string),
		checked:      make(map[*html.Node]bool),
		selected:     make(map[*html.Node]bool),
		deferred:     make(map[*html.Node]*string),
		selectValues: make(map[*html.Node]*string),
	}
}

// tryApply handles attributes that map onto properties. It reports false
// when name is an ordinary attribute for n.
func (f *forms) tryApply(n *html.Node, name string, value *string) bool {
	switch name {
	case "value":
		return f.tryApplyValue(n, value)
	case "checked":
		if isElement(n, "input") {
			f.checked[n] = value != nil
			return true
		}
	}
	return false
}

func (f *forms) tryApplyValue(n *html.Node, value *string) bool {
	switch {
	case isElement(n, "input"), isElement(n, "select"), isElement(n, "textarea"):
		f.deferred[n] = copyString(value)
		if n.Parent != nil {
			f.applyDeferred(n)
		}
		return true
	case isElement(n, "option"):
		if value != nil {
			setAttr(n, "value", *value)
		} else {
			removeAttr(n, "value")
		}
		if sel := closestAncestor(n, "select"); sel != nil {
			f.resolveSelect(sel)
		}
		return true
	}
	return false
}

func (f *forms) applyDeferred(n *html.Node) {
	v, ok := f.deferred[n]
	if !ok {
		return
	}
	delete(f.deferred, n)
	if isElement(n, "select") {
		f.selectValues[n] = v
		f.resolveSelect(n)
		return
	}
	if v == nil {
		f.values[n] = ""
		return
	}
	f.values[n] = *v
}

func (f *forms) optionInserted(opt *html.Node) {
	sel := closestAncestor(opt, "select")
	if sel == nil {
		return
	}
	if _, ok := f.selectValues[sel]; ok {
		f.resolveSelect(sel)
	}
}

// resolveSelect marks options selected to match the last value requested for
// sel. Multi-selects take a JSON array of option values.
func (f *forms) resolveSelect(sel *html.Node) {
	v, ok := f.selectValues[sel]
	if !ok {
		return
	}
	options := descendants(sel, "option")
	if hasAttr(sel, "multiple") {
		wanted := map[string]bool{}
		if v != nil {
			var list []string
			if err := json.Unmarshal([]byte(*v), &list); err == nil {
				for _, s := range list {
					wanted[s] = true
				}
			}
		}
		for _, opt := range options {
			f.selected[opt] = wanted[optionValue(opt)]
		}
		return
	}
	matched := false
	for _, opt := range options {
		hit := !matched && v != nil && optionValue(opt) == *v
		f.selected[opt] = hit
		matched = matched || hit
	}
}

func (f *forms) value(n *html.Node) string {
	switch {
	case isElement(n, "select"):
		options := descendants(n, "option")
		for _, opt := range options {
			if f.isSelected(opt) {
				return optionValue(opt)
			}
		}
		if _, explicit := f.selectValues[n]; !explicit && !hasAttr(n, "multiple") && len(options) > 0 {
			return optionValue(options[0])
		}
		return ""
	case isElement(n, "input"), isElement(n, "textarea"):
		if v, ok := f.values[n]; ok {
			return v
		}
		if isElement(n, "textarea") {
			return textContent(n)
		}
		v, _ := attr(n, "value")
		return v
	case isElement(n, "option"):
		return optionValue(n)
	}
	return ""
}

func (f *forms) isChecked(n *html.Node) bool {
	if c, ok := f.checked[n]; ok {
		return c
	}
	return isElement(n, "input") && hasAttr(n, "checked")
}

func (f *forms) isSelected(opt *html.Node) bool {
	if s, ok := f.selected[opt]; ok {
		return s
	}
	return hasAttr(opt, "selected")
}

func (f *forms) setValue(n *html.Node, v string) {
	if isElement(n, "select") {
		f.selectValues[n] = &v
		f.resolveSelect(n)
		return
	}
	f.values[n] = v
}

// forget drops state for a detached subtree.
func (f *forms) forget(root *html.Node) {
	walkNodes(root, func(n *html.Node) {
		delete(f.values, n)
		delete(f.checked, n)
		delete(f.selected, n)
		delete(f.deferred, n)
		delete(f.selectValues, n)
	})
}

func optionValue(opt *html.Node) string {
	if v, ok := attr(opt, "value"); ok {
		return v
	}
	return strings.Join(strings.Fields(textContent(opt)), " ")
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
