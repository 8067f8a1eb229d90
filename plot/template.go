package plot

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnknownTemplate = errors.New("unknown plot template")

// templates are the theme names plotly ships with. Names can be combined
// with "+", e.g. "simple_white+presentation".
var templates = map[string]struct{}{
	"ggplot2":      {},
	"seaborn":      {},
	"simple_white": {},
	"plotly":       {},
	"plotly_white": {},
	"plotly_dark":  {},
	"presentation": {},
	"xgridoff":     {},
	"ygridoff":     {},
	"gridon":       {},
	"none":         {},
}

func checkTemplate(name string) error {
	for _, part := range strings.Split(name, "+") {
		if _, ok := templates[part]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
		}
	}
	return nil
}

// TemplateOptions style a figure built by CustomGraphTemplate. Zero fields
// take the values of DefaultTemplateOptions; LineWidth is a pointer so that
// an explicit 0 hides the axis lines.
type TemplateOptions struct {
	Template   string   `yaml:"template"`
	Height     int      `yaml:"height"`
	Width      int      `yaml:"width"`
	LineWidth  *float64 `yaml:"line_width"`
	Titles     []string `yaml:"titles"`
	Rows       int      `yaml:"rows"`
	Columns    int      `yaml:"columns"`
	SharedX    bool     `yaml:"shared_x"`
	SharedY    bool     `yaml:"shared_y"`
	FontSize   float64  `yaml:"font_size"`
	FontFamily string   `yaml:"font_family"`
	// Grid is passed to MakeSubplots. Its Rows, Cols, SubplotTitles and
	// SharedYAxes come from the fields above and must be left unset.
	Grid GridOptions `yaml:"grid"`
}

func DefaultTemplateOptions() TemplateOptions {
	lineWidth := 1.5
	return TemplateOptions{
		Template:   "simple_white",
		Height:     500,
		Width:      500,
		LineWidth:  &lineWidth,
		Titles:     []string{""},
		Rows:       1,
		Columns:    1,
		FontSize:   22,
		FontFamily: "Arial",
	}
}

func (o TemplateOptions) withDefaults() TemplateOptions {
	def := DefaultTemplateOptions()
	if o.Template == "" {
		o.Template = def.Template
	}
	if o.Height == 0 {
		o.Height = def.Height
	}
	if o.Width == 0 {
		o.Width = def.Width
	}
	if o.LineWidth == nil {
		o.LineWidth = def.LineWidth
	}
	if o.Titles == nil {
		o.Titles = def.Titles
	}
	if o.Rows == 0 {
		o.Rows = def.Rows
	}
	if o.Columns == 0 {
		o.Columns = def.Columns
	}
	if o.FontSize == 0 {
		o.FontSize = def.FontSize
	}
	if o.FontFamily == "" {
		o.FontFamily = def.FontFamily
	}
	return o
}

// CustomGraphTemplate returns an empty Rows x Columns figure with the house
// style: every panel labelled xTitle/yTitle with the configured line width, a
// centred figure title slot, subplot titles at FontSize, and the template,
// size and font applied. SharedX and SharedY make every x (y) axis match the
// first one.
func CustomGraphTemplate(xTitle, yTitle string, opts TemplateOptions) (*Figure, error) {
	opts = opts.withDefaults()
	if err := checkTemplate(opts.Template); err != nil {
		return nil, err
	}
	g := opts.Grid
	if g.Rows != 0 || g.Cols != 0 || g.SubplotTitles != nil || g.SharedYAxes {
		return nil, fmt.Errorf("%w: rows, cols, subplot titles and shared y axes are set through TemplateOptions", ErrInvalidGrid)
	}
	g.Rows, g.Cols = opts.Rows, opts.Columns
	g.SubplotTitles = opts.Titles
	g.SharedYAxes = opts.SharedY

	fig, err := MakeSubplots(g)
	if err != nil {
		return nil, err
	}

	lineWidth := *opts.LineWidth
	for _, a := range fig.YAxes() {
		a.Title = &AxisTitle{Text: yTitle}
		a.LineWidth = &lineWidth
	}
	for _, a := range fig.XAxes() {
		a.Title = &AxisTitle{Text: xTitle}
		a.LineWidth = &lineWidth
	}

	l := fig.Layout
	l.Title = &Title{X: 0.5, Y: 0.9, XAnchor: "center", YAnchor: "top"}
	for _, ann := range l.Annotations {
		if ann.Font == nil {
			ann.Font = &Font{}
		}
		ann.Font.Size = opts.FontSize
	}
	l.Template = opts.Template
	l.Height = opts.Height
	l.Width = opts.Width
	l.Font = &Font{Size: opts.FontSize, Family: opts.FontFamily}

	if opts.SharedX {
		for _, a := range fig.XAxes() {
			a.Matches = "x"
		}
	}
	if opts.SharedY {
		for _, a := range fig.YAxes() {
			a.Matches = "y"
		}
	}
	return fig, nil
}

// LoadTemplateOptions reads a YAML style preset over DefaultTemplateOptions.
// Unknown keys are rejected.
func LoadTemplateOptions(r io.Reader) (TemplateOptions, error) {
	opts := DefaultTemplateOptions()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil {
		if errors.Is(err, io.EOF) {
			return opts, nil
		}
		return TemplateOptions{}, fmt.Errorf("parsing template options: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return TemplateOptions{}, fmt.Errorf("template options contain multiple documents")
	}
	if err := checkTemplate(opts.Template); err != nil {
		return TemplateOptions{}, err
	}
	return opts, nil
}
