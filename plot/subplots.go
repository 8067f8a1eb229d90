package plot

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownOption is returned for GridOptions.Extra keys MakeSubplots
	// does not recognise.
	ErrUnknownOption = errors.New("unknown subplot option")
	ErrInvalidGrid   = errors.New("invalid subplot grid")
)

const (
	StartTopLeft    = "top-left"
	StartBottomLeft = "bottom-left"

	subplotTitleSize = 16
)

// GridOptions configure MakeSubplots. Nil spacings use plotly's defaults of
// 0.2/Cols horizontally and 0.3/Rows vertically.
type GridOptions struct {
	Rows          int      `yaml:"-"`
	Cols          int      `yaml:"-"`
	SubplotTitles []string `yaml:"-"`
	// SharedXAxes links the x axes of each column to its bottom panel and
	// hides the other panels' tick labels.
	SharedXAxes bool `yaml:"shared_xaxes"`
	// SharedYAxes links the y axes of each row to its first panel.
	SharedYAxes       bool      `yaml:"-"`
	HorizontalSpacing *float64  `yaml:"horizontal_spacing"`
	VerticalSpacing   *float64  `yaml:"vertical_spacing"`
	StartCell         string    `yaml:"start_cell"`
	ColumnWidths      []float64 `yaml:"column_widths"`
	RowHeights        []float64 `yaml:"row_heights"`
	// ColumnTitles label the top of each column and RowTitles the right side
	// of each row. When set they need one entry per column (row).
	ColumnTitles []string `yaml:"column_titles"`
	RowTitles    []string `yaml:"row_titles"`
	// Extra carries the remaining make_subplots options: "x_title" and
	// "y_title" (string) add figure-wide axis labels, "print_grid" (bool) is
	// accepted and ignored. Any other key fails with ErrUnknownOption.
	Extra map[string]interface{} `yaml:"extra"`
}

type extraOptions struct {
	xTitle, yTitle string
}

func parseExtra(extra map[string]interface{}) (extraOptions, error) {
	var out extraOptions
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := extra[k]
		switch k {
		case "x_title", "y_title":
			s, ok := v.(string)
			if !ok {
				return out, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidGrid, k, v)
			}
			if k == "x_title" {
				out.xTitle = s
			} else {
				out.yTitle = s
			}
		case "print_grid":
			if _, ok := v.(bool); !ok {
				return out, fmt.Errorf("%w: print_grid must be a bool, got %T", ErrInvalidGrid, v)
			}
		default:
			return out, fmt.Errorf("%w: %q", ErrUnknownOption, k)
		}
	}
	return out, nil
}

// MakeSubplots lays out a Rows x Cols grid of empty panels, numbering axes
// row by row from the first row.
func MakeSubplots(opts GridOptions) (*Figure, error) {
	rows, cols := opts.Rows, opts.Cols
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("%w: rows and cols must be at least 1, got %d and %d", ErrInvalidGrid, rows, cols)
	}
	if n := len(opts.SubplotTitles); n > rows*cols {
		return nil, fmt.Errorf("%w: %d subplot titles for %d panels", ErrInvalidGrid, n, rows*cols)
	}
	if n := len(opts.ColumnTitles); n > 0 && n != cols {
		return nil, fmt.Errorf("%w: %d column titles for %d columns", ErrInvalidGrid, n, cols)
	}
	if n := len(opts.RowTitles); n > 0 && n != rows {
		return nil, fmt.Errorf("%w: %d row titles for %d rows", ErrInvalidGrid, n, rows)
	}
	startCell := opts.StartCell
	switch startCell {
	case "":
		startCell = StartTopLeft
	case StartTopLeft, StartBottomLeft:
	default:
		return nil, fmt.Errorf("%w: start_cell %q", ErrInvalidGrid, startCell)
	}
	extra, err := parseExtra(opts.Extra)
	if err != nil {
		return nil, err
	}

	hs, err := spacing("horizontal", opts.HorizontalSpacing, 0.2/float64(cols), cols)
	if err != nil {
		return nil, err
	}
	vs, err := spacing("vertical", opts.VerticalSpacing, 0.3/float64(rows), rows)
	if err != nil {
		return nil, err
	}
	widths, err := fractions("column_widths", opts.ColumnWidths, cols, hs)
	if err != nil {
		return nil, err
	}
	heights, err := fractions("row_heights", opts.RowHeights, rows, vs)
	if err != nil {
		return nil, err
	}

	xDomains := make([][2]float64, cols)
	start := 0.0
	for c := 0; c < cols; c++ {
		xDomains[c] = [2]float64{start, start + widths[c]}
		start += widths[c] + hs
	}

	// row 0 is the first row; it sits at the top for top-left grids
	yDomains := make([][2]float64, rows)
	start = 0.0
	for i := 0; i < rows; i++ {
		r := i
		if startCell == StartTopLeft {
			r = rows - 1 - i
		}
		yDomains[r] = [2]float64{start, start + heights[r]}
		start += heights[r] + vs
	}

	layout := &Layout{}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			layout.xaxes = append(layout.xaxes, &Axis{id: axisID("x", i), Domain: xDomains[c], Anchor: axisID("y", i)})
			layout.yaxes = append(layout.yaxes, &Axis{id: axisID("y", i), Domain: yDomains[r], Anchor: axisID("x", i)})
		}
	}

	if opts.SharedXAxes {
		// the panel nearest the x axis labels carries them
		ref := rows - 1
		if startCell == StartBottomLeft {
			ref = 0
		}
		for c := 0; c < cols; c++ {
			first := layout.xaxes[ref*cols+c]
			for r := 0; r < rows; r++ {
				if r != ref {
					linkAxis(layout.xaxes[r*cols+c], first)
				}
			}
		}
	}
	if opts.SharedYAxes {
		for r := 0; r < rows; r++ {
			first := layout.yaxes[r*cols]
			for c := 1; c < cols; c++ {
				linkAxis(layout.yaxes[r*cols+c], first)
			}
		}
	}

	for i, title := range opts.SubplotTitles {
		if title == "" {
			continue
		}
		x, y := layout.xaxes[i].Domain, layout.yaxes[i].Domain
		layout.Annotations = append(layout.Annotations, &Annotation{
			Text:    title,
			X:       (x[0] + x[1]) / 2,
			Y:       y[1],
			XRef:    "paper",
			YRef:    "paper",
			XAnchor: "center",
			YAnchor: "bottom",
			Font:    &Font{Size: subplotTitleSize},
		})
	}
	top, right := 0.0, xDomains[cols-1][1]
	for _, d := range yDomains {
		if d[1] > top {
			top = d[1]
		}
	}
	for c, title := range opts.ColumnTitles {
		layout.Annotations = append(layout.Annotations, &Annotation{
			Text: title, X: (xDomains[c][0] + xDomains[c][1]) / 2, Y: top,
			XRef: "paper", YRef: "paper", XAnchor: "center", YAnchor: "bottom",
			Font: &Font{Size: subplotTitleSize},
		})
	}
	for r, title := range opts.RowTitles {
		layout.Annotations = append(layout.Annotations, &Annotation{
			Text: title, X: right, Y: (yDomains[r][0] + yDomains[r][1]) / 2,
			XRef: "paper", YRef: "paper", XAnchor: "left", YAnchor: "middle",
			TextAngle: 90,
			Font:      &Font{Size: subplotTitleSize},
		})
	}
	if extra.xTitle != "" {
		layout.Annotations = append(layout.Annotations, &Annotation{
			Text: extra.xTitle, X: 0.5, Y: 0, XRef: "paper", YRef: "paper",
			XAnchor: "center", YAnchor: "top", YShift: -30,
			Font: &Font{Size: subplotTitleSize},
		})
	}
	if extra.yTitle != "" {
		layout.Annotations = append(layout.Annotations, &Annotation{
			Text: extra.yTitle, X: 0, Y: 0.5, XRef: "paper", YRef: "paper",
			XAnchor: "right", YAnchor: "middle", XShift: -40, TextAngle: -90,
			Font: &Font{Size: subplotTitleSize},
		})
	}

	return &Figure{Layout: layout, rows: rows, cols: cols}, nil
}

func linkAxis(a, to *Axis) {
	hidden := false
	a.Matches = to.id
	a.ShowTickLabels = &hidden
}

func spacing(name string, set *float64, def float64, n int) (float64, error) {
	if set == nil {
		return def, nil
	}
	s := *set
	if s < 0 || (n > 1 && s > 1/float64(n-1)) {
		return 0, fmt.Errorf("%w: %s spacing %v must be between 0 and 1/(n-1)", ErrInvalidGrid, name, s)
	}
	return s, nil
}

// fractions splits the space left after n-1 gaps among n panels, in
// proportion to rel (equal shares when rel is empty).
func fractions(name string, rel []float64, n int, gap float64) ([]float64, error) {
	if len(rel) == 0 {
		rel = make([]float64, n)
		for i := range rel {
			rel[i] = 1
		}
	}
	if len(rel) != n {
		return nil, fmt.Errorf("%w: %d %s for %d panels", ErrInvalidGrid, len(rel), name, n)
	}
	total := 0.0
	for _, r := range rel {
		if r <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidGrid, name)
		}
		total += r
	}
	space := 1 - gap*float64(n-1)
	out := make([]float64, n)
	for i, r := range rel {
		out[i] = space * r / total
	}
	return out, nil
}
