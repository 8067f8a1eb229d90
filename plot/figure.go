// Package plot builds plotly figure documents. Figures are plain data: they
// serialise to the JSON schema plotly.js and plotly.py read, and are never
// rendered here.
package plot

import (
	"encoding/json"
	"fmt"
	"io"
)

// Trace is a single plotly trace ("type", "x", "y", ...). Traces are passed
// through to the figure JSON untouched apart from their axis references.
type Trace map[string]interface{}

// Figure is a plotly figure: traces plus layout.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout *Layout `json:"layout"`

	rows, cols int
}

// Layout is the subset of the plotly layout schema the figure builders set.
// Cartesian axes are kept in panel order and written as "xaxis", "xaxis2",
// ... when marshalled.
type Layout struct {
	Title       *Title        `json:"title,omitempty"`
	Template    string        `json:"template,omitempty"`
	Height      int           `json:"height,omitempty"`
	Width       int           `json:"width,omitempty"`
	Font        *Font         `json:"font,omitempty"`
	Annotations []*Annotation `json:"annotations,omitempty"`

	xaxes []*Axis
	yaxes []*Axis
}

type Title struct {
	Text    string  `json:"text,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	XAnchor string  `json:"xanchor,omitempty"`
	YAnchor string  `json:"yanchor,omitempty"`
}

type Font struct {
	Size   float64 `json:"size,omitempty"`
	Family string  `json:"family,omitempty"`
}

// Annotation is a text label placed in paper coordinates.
type Annotation struct {
	Text      string  `json:"text"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	XRef      string  `json:"xref"`
	YRef      string  `json:"yref"`
	XAnchor   string  `json:"xanchor"`
	YAnchor   string  `json:"yanchor"`
	XShift    float64 `json:"xshift,omitempty"`
	YShift    float64 `json:"yshift,omitempty"`
	TextAngle float64 `json:"textangle,omitempty"`
	ShowArrow bool    `json:"showarrow"`
	Font      *Font   `json:"font,omitempty"`
}

type AxisTitle struct {
	Text string `json:"text"`
}

// Axis is one cartesian axis of a panel.
type Axis struct {
	Title          *AxisTitle `json:"title,omitempty"`
	LineWidth      *float64   `json:"linewidth,omitempty"`
	Domain         [2]float64 `json:"domain"`
	Anchor         string     `json:"anchor"`
	Matches        string     `json:"matches,omitempty"`
	ShowTickLabels *bool      `json:"showticklabels,omitempty"`

	id string
}

// ID is the short axis reference traces and "matches" use: "x", "y2", ...
func (a *Axis) ID() string { return a.id }

// axisID returns the reference of the i-th (0-based) axis with prefix.
func axisID(prefix string, i int) string {
	if i == 0 {
		return prefix
	}
	return fmt.Sprintf("%s%d", prefix, i+1)
}

// layoutKey maps an axis reference to its layout attribute: "x2" -> "xaxis2".
func layoutKey(id string) string {
	return id[:1] + "axis" + id[1:]
}

// MarshalJSON flattens the axes into the layout object.
func (l Layout) MarshalJSON() ([]byte, error) {
	type plain Layout
	data, err := json.Marshal(plain(l))
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for _, axes := range [][]*Axis{l.xaxes, l.yaxes} {
		for _, a := range axes {
			raw, err := json.Marshal(a)
			if err != nil {
				return nil, err
			}
			fields[layoutKey(a.id)] = raw
		}
	}
	return json.Marshal(fields)
}

// XAxes returns the x axes in panel order. Changes to the returned axes
// apply to the figure.
func (f *Figure) XAxes() []*Axis { return f.Layout.xaxes }

// YAxes returns the y axes in panel order.
func (f *Figure) YAxes() []*Axis { return f.Layout.yaxes }

// Panels is the number of panels in the grid.
func (f *Figure) Panels() int { return f.rows * f.cols }

// AddTrace places a copy of trace in the panel at row, col (1-based).
func (f *Figure) AddTrace(trace Trace, row, col int) error {
	if row < 1 || row > f.rows || col < 1 || col > f.cols {
		return fmt.Errorf("panel (%d, %d) is outside the %dx%d grid", row, col, f.rows, f.cols)
	}
	i := (row-1)*f.cols + (col - 1)
	t := make(Trace, len(trace)+2)
	for k, v := range trace {
		t[k] = v
	}
	t["xaxis"] = f.Layout.xaxes[i].id
	t["yaxis"] = f.Layout.yaxes[i].id
	f.Data = append(f.Data, t)
	return nil
}

func (f *Figure) MarshalJSON() ([]byte, error) {
	type plain Figure
	p := plain(*f)
	if p.Data == nil {
		p.Data = []Trace{}
	}
	return json.Marshal(p)
}

// WriteJSON writes the figure as indented plotly JSON.
func (f *Figure) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}
