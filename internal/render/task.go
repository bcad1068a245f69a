package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/exedis/omnicore-back/internal/models"
)

var (
	titleRe       = regexp.MustCompile(`(?s)\[TITLE\](.*?)(?:\[DESCRIPTION\]|$)`)
	descriptionRe = regexp.MustCompile(`(?s)\[DESCRIPTION\](.*)`)
)

var (
	nameKeys  = []string{"name", "firstName", "fullName", "username"}
	emailKeys = []string{"email"}
	phoneKeys = []string{"phone", "phoneNumber"}
)

// TaskContent builds a task title and description for sub. A task template
// may split its output with [TITLE] and [DESCRIPTION] markers; missing parts
// are synthesized from the payload.
func TaskContent(tpl *models.MessageTemplate, sub *models.Submission) (title, description string) {
	if tpl == nil || strings.TrimSpace(tpl.Template) == "" {
		return TaskTitle(sub), TaskDescription(sub)
	}

	rendered := Render(tpl.Template, sub)
	if m := titleRe.FindStringSubmatch(rendered); m != nil {
		title = strings.TrimSpace(m[1])
	}
	if m := descriptionRe.FindStringSubmatch(rendered); m != nil {
		description = strings.TrimSpace(m[1])
	}

	if title == "" {
		title = TaskTitle(sub)
	}
	if description == "" && !strings.Contains(rendered, "[TITLE]") {
		description = strings.TrimSpace(rendered)
	}
	if description == "" {
		description = TaskDescription(sub)
	}
	return title, description
}

// TaskTitle picks a contact-like field from the payload for the title.
func TaskTitle(sub *models.Submission) string {
	for _, keys := range [][]string{nameKeys, emailKeys, phoneKeys} {
		if v := firstValue(sub.Data, keys); v != "" {
			return "Request from " + v
		}
	}
	return "Request from " + sub.SiteName
}

// TaskDescription lists the submission as markdown.
func TaskDescription(sub *models.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Site:** %s\n", sub.SiteName)
	fmt.Fprintf(&b, "**Form:** %s\n", sub.FormName)
	fmt.Fprintf(&b, "**Date:** %s\n", sub.CreatedAt.Format(TimeLayout))
	if len(sub.Data) > 0 {
		b.WriteString("\n**Request data:**\n")
		for _, kv := range FlattenValues(sub.Data) {
			fmt.Fprintf(&b, "- **%s:** %s\n", kv.Key, kv.Value)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstValue(data map[string]interface{}, keys []string) string {
	for _, k := range keys {
		v, ok := data[k]
		if !ok {
			continue
		}
		if s := strings.TrimSpace(stringify(v)); s != "" {
			return s
		}
	}
	return ""
}
