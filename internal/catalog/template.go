package catalog

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the only form a date takes when substituted into a template.
const DateLayout = "2006-01-02"

// Render substitutes the inclusive calendar range [start, end] into the
// template's two ordered {} slots. The second slot receives the day after end,
// so templates compare with datetime >= '{}' AND datetime < '{}' to cover
// every reading of the end day on both drivers.
// {0} and {1} address the bounds explicitly; {{ and }} are literal braces.
// Values are inserted verbatim, so they are restricted to DateLayout.
func Render(q Query, start, end time.Time) (string, error) {
	next := time.Date(end.Year(), end.Month(), end.Day()+1, 0, 0, 0, 0, end.Location())
	return substitute(q.Template, start.Format(DateLayout), next.Format(DateLayout))
}

func substitute(tmpl string, args ...string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl) + 16)

	auto := 0
	explicit := false
	seen := make([]bool, len(args))
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed '{' at offset %d", ErrConfig, i)
			}
			field := tmpl[i+1 : i+end]
			var n int
			switch field {
			case "":
				if explicit {
					return "", fmt.Errorf("%w: cannot mix {} and {n} slots", ErrConfig)
				}
				n = auto
				auto++
			case "0", "1":
				if auto > 0 {
					return "", fmt.Errorf("%w: cannot mix {} and {n} slots", ErrConfig)
				}
				explicit = true
				n = int(field[0] - '0')
			default:
				return "", fmt.Errorf("%w: unsupported slot {%s}", ErrConfig, field)
			}
			if n >= len(args) {
				return "", fmt.Errorf("%w: template has more than %d slots", ErrConfig, len(args))
			}
			b.WriteString(args[n])
			seen[n] = true
			i += end
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' at offset %d", ErrConfig, i)
		default:
			b.WriteByte(c)
		}
	}
	if !explicit && auto != len(args) {
		return "", fmt.Errorf("%w: template has %d slots, want %d", ErrConfig, auto, len(args))
	}
	for n, ok := range seen {
		if !ok {
			return "", fmt.Errorf("%w: template never uses slot %d", ErrConfig, n)
		}
	}
	return b.String(), nil
}
