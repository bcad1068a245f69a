package render

import (
	"html"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/exedis/omnicore-back/internal/models"
)

func sampleSubmission() *models.Submission {
	return &models.Submission{
		UserID:   "u1",
		SiteName: "acme",
		FormName: "contact",
		Data: map[string]interface{}{
			"name":    "Jo",
			"email":   "jo@x.com",
			"age":     float64(42),
			"tags":    []interface{}{"a", "b"},
			"address": map[string]interface{}{"city": "Riga", "zip": nil},
			"empty":   nil,
		},
		AdvertisingParams: map[string]interface{}{"utm_source": "google"},
		CreatedAt:         time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC),
	}
}

func TestRenderSubstitution(t *testing.T) {
	sub := sampleSubmission()
	cases := map[string]string{
		"Hi {{data.name}} from {{siteName}}":  "Hi Jo from acme",
		"{{ formName }}":                      "contact",
		"City: {{data.address.city}}":         "City: Riga",
		"Age {{data.age}}":                    "Age 42",
		"Tags {{data.tags}}":                  "Tags a,b",
		"First tag {{data.tags.0}}":           "First tag a",
		"Null [{{data.empty}}]":               "Null []",
		"Object [{{data.address}}]":           "Object []",
		"Nested null [{{data.address.zip}}]":  "Nested null []",
		"UTM {{advertisingParams.utm_source}}": "UTM google",
	}
	for tpl, want := range cases {
		assert.Equal(t, want, Render(tpl, sub), tpl)
	}
}

func TestRenderKeepsUnknownPlaceholder(t *testing.T) {
	sub := sampleSubmission()
	assert.Equal(t, "Value: {{nonexistent.path}}", Render("Value: {{nonexistent.path}}", sub))
	assert.Equal(t, "{{data.tags.9}}", Render("{{data.tags.9}}", sub))
	assert.Equal(t, "{{data.name.first}}", Render("{{data.name.first}}", sub))
}

func TestRenderEscapesValuesOnly(t *testing.T) {
	sub := sampleSubmission()
	sub.Data["name"] = "<b>Jo</b>"
	got := RenderEscaped("<i>{{data.name}}</i>", sub, html.EscapeString)
	assert.Equal(t, "<i>&lt;b&gt;Jo&lt;/b&gt;</i>", got)
}

func TestMessageFallback(t *testing.T) {
	sub := sampleSubmission()
	msg := Message(nil, sub, nil)

	assert.Contains(t, msg, `New request from site "acme"`)
	assert.Contains(t, msg, "Form: contact")
	assert.Contains(t, msg, "05.03.2024 10:30:00")
	for key := range sub.Data {
		assert.Contains(t, msg, key)
	}
	assert.Contains(t, msg, "• address.city: Riga")
	assert.Contains(t, msg, "Advertising params:")
	assert.Contains(t, msg, "• utm_source: google")

	sub.AdvertisingParams = nil
	assert.NotContains(t, Message(&models.MessageTemplate{Template: "  "}, sub, nil), "Advertising params")
}

func TestFlatten(t *testing.T) {
	data := map[string]interface{}{
		"name":    "Jo",
		"list":    []interface{}{map[string]interface{}{"x": 1}},
		"address": map[string]interface{}{"city": "Riga", "geo": map[string]interface{}{"lat": 1.0}},
	}
	assert.Equal(t, []string{"data.address.city", "data.address.geo.lat", "data.list", "data.name"}, Flatten("data", data))
	assert.Equal(t, []string{"address.city", "address.geo.lat", "list", "name"}, Flatten("", data))
	assert.Empty(t, Flatten("data", nil))
}

func TestFallbackKeepsEmptyObjectKey(t *testing.T) {
	sub := &models.Submission{
		SiteName: "acme",
		FormName: "contact",
		Data:     map[string]interface{}{"name": "Jo", "extra": map[string]interface{}{}},
	}
	msg := Fallback(sub, nil)
	assert.Contains(t, msg, "• extra: \n")
	assert.Contains(t, msg, "• name: Jo")

	assert.Equal(t, []KeyValue{{Key: "extra", Value: ""}, {Key: "name", Value: "Jo"}}, FlattenValues(sub.Data))
}
