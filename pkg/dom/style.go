package dom

import (
	"strings"

	"golang.org/x/net/html"
)

type declaration struct {
	prop  string
	value string
}

func parseStyle(s string) []declaration {
	var decls []declaration
	for _, part := range strings.Split(s, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		decls = append(decls, declaration{prop: prop, value: strings.TrimSpace(value)})
	}
	return decls
}

func formatStyle(decls []declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.prop+": "+d.value)
	}
	return strings.Join(parts, "; ")
}

// StyleProperty returns the inline value of a CSS property, or "".
func StyleProperty(n *html.Node, prop string) string {
	raw, _ := Attr(n, "style")
	prop = strings.ToLower(prop)
	value := ""
	for _, d := range parseStyle(raw) {
		if d.prop == prop {
			value = d.value // last declaration wins
		}
	}
	return value
}

// SetStyleProperty sets an inline CSS property, keeping the others in order.
func SetStyleProperty(n *html.Node, prop, value string) {
	raw, _ := Attr(n, "style")
	prop = strings.ToLower(prop)
	decls := parseStyle(raw)
	replaced := false
	for i := range decls {
		if decls[i].prop == prop {
			decls[i].value = value
			replaced = true
		}
	}
	if !replaced {
		decls = append(decls, declaration{prop: prop, value: value})
	}
	SetAttr(n, "style", formatStyle(decls))
}

// Position returns the element's positioning scheme. Without a computed style
// the inline declaration is authoritative and the CSS default is static.
func Position(n *html.Node) string {
	v := strings.ToLower(StyleProperty(n, "position"))
	if i := strings.Index(v, "!"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	if v == "" {
		return "static"
	}
	return v
}
