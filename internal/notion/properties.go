package notion

import "time"

// PropertyMap is the partial property set of one page write. Only the keys
// present are touched by the API; everything else on the page is preserved.
type PropertyMap map[string]interface{}

type richText struct {
	Type string   `json:"type"`
	Text textSpan `json:"text"`
}

type textSpan struct {
	Content string `json:"content"`
}

type titleProperty struct {
	Title []richText `json:"title"`
}

type richTextProperty struct {
	RichText []richText `json:"rich_text"`
}

type numberProperty struct {
	Number *float64 `json:"number"`
}

type urlProperty struct {
	URL *string `json:"url"`
}

type dateProperty struct {
	Date *dateValue `json:"date"`
}

type dateValue struct {
	Start string `json:"start"`
}

type selectProperty struct {
	Select *selectOption `json:"select"`
}

type multiSelectProperty struct {
	MultiSelect []selectOption `json:"multi_select"`
}

type selectOption struct {
	Name string `json:"name"`
}

func spans(s string) []richText {
	if s == "" {
		return []richText{}
	}
	return []richText{{Type: "text", Text: textSpan{Content: s}}}
}

// Title sets the database title property.
func Title(s string) interface{} { return titleProperty{Title: spans(s)} }

// Text sets a rich_text property.
func Text(s string) interface{} { return richTextProperty{RichText: spans(s)} }

// Number sets a number property.
func Number(v float64) interface{} { return numberProperty{Number: &v} }

// NumberPtr sets a number property from an optional value; nil clears it.
func NumberPtr(v *float64) interface{} { return numberProperty{Number: v} }

// URL sets a url property; empty clears it.
func URL(s string) interface{} {
	if s == "" {
		return urlProperty{URL: nil}
	}
	return urlProperty{URL: &s}
}

// Date sets a date property.
func Date(t time.Time) interface{} {
	return dateProperty{Date: &dateValue{Start: t.Format(time.RFC3339)}}
}

// Select sets a select property; empty clears it.
func Select(s string) interface{} {
	if s == "" {
		return selectProperty{Select: nil}
	}
	return selectProperty{Select: &selectOption{Name: s}}
}

// MultiSelect sets a multi_select property.
func MultiSelect(names []string) interface{} {
	opts := make([]selectOption, 0, len(names))
	for _, n := range names {
		opts = append(opts, selectOption{Name: n})
	}
	return multiSelectProperty{MultiSelect: opts}
}

// The read side. Pages come back with every property in a type-tagged
// envelope; only the variants the dashboard uses are decoded.

type propertyEnvelope struct {
	Type        string         `json:"type"`
	Title       []richTextSpan `json:"title"`
	RichText    []richTextSpan `json:"rich_text"`
	Number      *float64       `json:"number"`
	URL         *string        `json:"url"`
	Date        *dateValue     `json:"date"`
	Select      *selectOption  `json:"select"`
	MultiSelect []selectOption `json:"multi_select"`
}

type richTextSpan struct {
	PlainText string `json:"plain_text"`
}

func (p *propertyEnvelope) plainText() string {
	var spans []richTextSpan
	switch p.Type {
	case "title":
		spans = p.Title
	case "rich_text":
		spans = p.RichText
	}
	out := ""
	for _, s := range spans {
		out += s.PlainText
	}
	return out
}
