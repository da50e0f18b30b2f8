package homing

// TemplateKind discriminates the entries of a group's template list.
type TemplateKind int

const (
	// TemplateSnippet expands a named snippet with its argument struct.
	TemplateSnippet TemplateKind = iota
	// TemplateText inserts literal PLC text.
	TemplateText
	// TemplateAxisFilter changes the group's active axes for the entries that follow.
	TemplateAxisFilter
)

func (k TemplateKind) String() string {
	switch k {
	case TemplateSnippet:
		return "snippet"
	case TemplateText:
		return "text"
	case TemplateAxisFilter:
		return "axis_filter"
	default:
		return "unknown"
	}
}

// Template records one step of a group's generated program. The list order
// inside a Group is the emission order.
type Template struct {
	kind TemplateKind
	name string
	args any
	text string
	axes []int
}

// SnippetTemplate records a named snippet. args must be one of the snippet
// argument structs held by value.
func SnippetTemplate(name string, args any) Template {
	return Template{kind: TemplateSnippet, name: name, args: args}
}

// TextTemplate records literal text inserted verbatim into the PLC.
func TextTemplate(text string) Template {
	return Template{kind: TemplateText, text: text}
}

// AxisFilterTemplate records an axis filter. An empty list resets the filter
// to all of the group's axes.
func AxisFilterTemplate(axes []int) Template {
	return Template{kind: TemplateAxisFilter, axes: append([]int{}, axes...)}
}

func (t Template) Kind() TemplateKind { return t.kind }

// Name returns the snippet name, empty for text and filter entries.
func (t Template) Name() string { return t.name }

// Args returns the snippet argument struct.
func (t Template) Args() any { return t.args }

func (t Template) Text() string { return t.text }

// Axes returns a copy of the filter axes.
func (t Template) Axes() []int { return append([]int{}, t.axes...) }

// IsReset reports whether an axis filter entry restores all axes.
func (t Template) IsReset() bool {
	return t.kind == TemplateAxisFilter && len(t.axes) == 0
}
