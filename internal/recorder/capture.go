// internal/recorder/capture.go
// Selector capture. When the recorder persists a step it distills the target
// element into an ordered candidate chain, most specific strategy first and
// coordinates always last. The chain is frozen into the workflow exactly as
// built here; the resolver replays it in this order forever after.
package recorder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/naytrik/naytrik/api/schemas"
	"github.com/naytrik/naytrik/internal/browser"
)

// Attributes that identify an element well enough to lead the chain, in
// preference order.
var preferredAttrs = []string{
	"data-testid", "data-test", "data-qa", "data-cy",
	"name", "aria-label", "placeholder", "title", "alt",
}

// validCSSIdent matches ids and classes safe to embed in a selector without
// escaping. Generated-looking ids (hex runs, long digit tails) are excluded
// because they rarely survive a redeploy.
var validCSSIdent = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

var generatedIdent = regexp.MustCompile(`\d{4,}|^[0-9a-f]{8,}$`)

const maxTextCandidate = 60

// BuildSelector distills a live element into a selector candidate chain.
// The element must carry its attribute map (from InspectElement or
// ListInteractive).
func BuildSelector(info browser.ElementInfo) schemas.Selector {
	var candidates []schemas.Candidate
	add := func(strategy schemas.Strategy, value string) {
		for _, c := range candidates {
			if c.Strategy == strategy && c.Value == value {
				return
			}
		}
		candidates = append(candidates, schemas.Candidate{
			Strategy: strategy,
			Value:    value,
			Priority: len(candidates),
		})
	}

	tag := strings.ToLower(info.Tag)
	attrs := info.Attributes

	// 1. Stable id.
	if id := attrs["id"]; usableIdent(id) {
		add(schemas.StrategyCSS, "#"+id)
	}

	// 2. Test hooks and identifying attributes. The strongest one doubles
	// as a CSS candidate; at most two more join as attribute lookups so the
	// chain stays short.
	attrHits := 0
	for _, name := range preferredAttrs {
		value := attrs[name]
		if value == "" || len(value) > 120 {
			continue
		}
		if attrHits == 0 {
			add(schemas.StrategyCSS, fmt.Sprintf(`%s[%s=%q]`, tag, name, value))
		}
		add(schemas.StrategyAttribute, name+"="+value)
		attrHits++
		if attrHits >= 3 {
			break
		}
	}

	// 3. Structural XPath anchored on the strongest attribute.
	if xp := buildXPath(tag, attrs, info.Text); xp != "" {
		add(schemas.StrategyXPath, xp)
	}

	// 4. Class-based CSS when the classes look hand-written.
	if classes := stableClasses(attrs["class"]); len(classes) > 0 {
		add(schemas.StrategyCSS, tag+"."+strings.Join(classes, "."))
	}

	// 5. Visible text.
	if text := strings.TrimSpace(info.Text); text != "" && len(text) <= maxTextCandidate {
		add(schemas.StrategyText, text)
	}

	// 6. Coordinates, strictly last.
	if info.CenterX > 0 || info.CenterY > 0 {
		add(schemas.StrategyCoordinates, schemas.FormatCoordinates(info.CenterX, info.CenterY))
	}

	textHint := strings.TrimSpace(info.Text)
	if len(textHint) > maxTextCandidate {
		textHint = ""
	}
	return schemas.Selector{
		Candidates: candidates,
		TextHint:   textHint,
		Tag:        tag,
	}
}

func usableIdent(s string) bool {
	return s != "" && validCSSIdent.MatchString(s) && !generatedIdent.MatchString(s)
}

func stableClasses(class string) []string {
	var out []string
	for _, c := range strings.Fields(class) {
		if usableIdent(c) && len(out) < 3 {
			out = append(out, c)
		}
	}
	return out
}

func buildXPath(tag string, attrs map[string]string, text string) string {
	if tag == "" {
		return ""
	}
	for _, name := range []string{"id", "name", "data-testid", "aria-label", "placeholder"} {
		v := attrs[name]
		if v == "" || strings.Contains(v, "'") {
			continue
		}
		if name == "id" && !usableIdent(v) {
			continue
		}
		return fmt.Sprintf("//%s[@%s='%s']", tag, name, v)
	}
	text = strings.TrimSpace(text)
	if text != "" && len(text) <= maxTextCandidate && !strings.Contains(text, "'") {
		return fmt.Sprintf("//%s[normalize-space(text())='%s']", tag, text)
	}
	return ""
}
