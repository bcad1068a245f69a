// Package render turns message templates and submissions into text.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/exedis/omnicore-back/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// EscapeFunc escapes substituted values for the target transport.
type EscapeFunc func(string) string

// TimeLayout is used when a submission timestamp is printed for humans.
const TimeLayout = "02.01.2006 15:04:05"

// Render substitutes {{path.to.field}} placeholders from sub into tpl.
func Render(tpl string, sub *models.Submission) string {
	return RenderEscaped(tpl, sub, nil)
}

// RenderEscaped is Render with every substituted value passed through escape.
// Unresolved tokens are kept verbatim; nil and object values become "".
func RenderEscaped(tpl string, sub *models.Submission, escape EscapeFunc) string {
	root := asRecord(sub)
	return placeholderRe.ReplaceAllStringFunc(tpl, func(token string) string {
		path := strings.TrimSpace(token[2 : len(token)-2])
		value, ok := lookup(root, strings.Split(path, "."))
		if !ok {
			return token
		}
		s := stringify(value)
		if escape != nil {
			s = escape(s)
		}
		return s
	})
}

// Message renders tpl, or the fallback dump when no template is stored.
func Message(tpl *models.MessageTemplate, sub *models.Submission, escape EscapeFunc) string {
	if tpl == nil || strings.TrimSpace(tpl.Template) == "" {
		return Fallback(sub, escape)
	}
	return RenderEscaped(tpl.Template, sub, escape)
}

// Fallback is the fixed human readable dump used when a user has no template.
func Fallback(sub *models.Submission, escape EscapeFunc) string {
	if escape == nil {
		escape = func(s string) string { return s }
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📨 New request from site \"%s\"\n", escape(sub.SiteName))
	fmt.Fprintf(&b, "📋 Form: %s\n", escape(sub.FormName))
	fmt.Fprintf(&b, "🕐 Time: %s\n", escape(sub.CreatedAt.Format(TimeLayout)))

	b.WriteString("\n📝 Form data:\n")
	for _, kv := range FlattenValues(sub.Data) {
		fmt.Fprintf(&b, "• %s: %s\n", escape(kv.Key), escape(kv.Value))
	}

	if len(sub.AdvertisingParams) > 0 {
		b.WriteString("\n📊 Advertising params:\n")
		for _, kv := range FlattenValues(sub.AdvertisingParams) {
			fmt.Fprintf(&b, "• %s: %s\n", escape(kv.Key), escape(kv.Value))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// KeyValue is one flattened payload entry.
type KeyValue struct {
	Key   string
	Value string
}

// FlattenValues flattens nested objects into dotted keys with printable
// values, sorted by key. Arrays and empty objects are leaves.
func FlattenValues(data map[string]interface{}) []KeyValue {
	var out []KeyValue
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, v := range m {
			key := joinPath(prefix, k)
			if nested, ok := v.(map[string]interface{}); ok && len(nested) > 0 {
				walk(key, nested)
				continue
			}
			out = append(out, KeyValue{Key: key, Value: stringify(v)})
		}
	}
	walk("", data)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Flatten returns the dotted field paths of data under prefix, sorted.
// Nested objects are recursed; arrays and scalars are leaves.
func Flatten(prefix string, data map[string]interface{}) []string {
	var out []string
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, v := range m {
			key := joinPath(prefix, k)
			if nested, ok := v.(map[string]interface{}); ok {
				walk(key, nested)
				continue
			}
			out = append(out, key)
		}
	}
	walk(prefix, data)
	sort.Strings(out)
	return out
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// asRecord views the submission as a plain JSON record so template paths
// match the API field names.
func asRecord(sub *models.Submission) map[string]interface{} {
	if sub == nil {
		return nil
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return map[string]interface{}{
			"siteName": sub.SiteName,
			"formName": sub.FormName,
			"data":     sub.Data,
		}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}

func lookup(root map[string]interface{}, path []string) (interface{}, bool) {
	var cur interface{} = root
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case map[string]interface{}:
		return ""
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			if m, ok := item.(map[string]interface{}); ok {
				raw, _ := json.Marshal(m)
				parts[i] = string(raw)
				continue
			}
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}
