package dom

import "strings"

type declaration struct {
	prop  string
	value string
}

// inlineStyle is an ordered set of CSS declarations from a style attribute.
type inlineStyle struct {
	decls []declaration
}

func parseInlineStyle(attr string) *inlineStyle {
	s := &inlineStyle{}
	for _, part := range splitDeclarations(attr) {
		idx := strings.IndexByte(part, ':')
		if idx <= 0 {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(part[:idx]))
		value := strings.TrimSpace(part[idx+1:])
		if prop == "" || value == "" {
			continue
		}
		s.set(prop, value)
	}
	return s
}

// splitDeclarations splits on ';' outside parentheses and quotes.
func splitDeclarations(attr string) []string {
	var parts []string
	var quote rune
	depth := 0
	start := 0
	for i, r := range attr {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case r == ';' && depth == 0:
			parts = append(parts, attr[start:i])
			start = i + 1
		}
	}
	parts = append(parts, attr[start:])
	return parts
}

func (s *inlineStyle) get(prop string) string {
	prop = strings.ToLower(prop)
	for _, d := range s.decls {
		if d.prop == prop {
			return d.value
		}
	}
	return ""
}

func (s *inlineStyle) set(prop, value string) {
	prop = strings.ToLower(prop)
	for i, d := range s.decls {
		if d.prop != prop {
			continue
		}
		if value == "" {
			s.decls = append(s.decls[:i], s.decls[i+1:]...)
		} else {
			s.decls[i].value = value
		}
		return
	}
	if value != "" {
		s.decls = append(s.decls, declaration{prop: prop, value: value})
	}
}

func (s *inlineStyle) String() string {
	parts := make([]string, 0, len(s.decls))
	for _, d := range s.decls {
		parts = append(parts, d.prop+": "+d.value+";")
	}
	return strings.Join(parts, " ")
}
