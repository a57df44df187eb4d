package trajectory

import (
	"fmt"
	"strconv"
	"strings"
)

// SVGSurface records drawing commands as an SVG document.
type SVGSurface struct {
	width, height float64
	path          strings.Builder
	strokes       []string
}

// NewSVGSurface returns a blank surface of the given size.
func NewSVGSurface(width, height float64) *SVGSurface {
	return &SVGSurface{width: width, height: height}
}

func (s *SVGSurface) Size() (float64, float64) { return s.width, s.height }

func (s *SVGSurface) Clear() {
	s.path.Reset()
	s.strokes = nil
}

func (s *SVGSurface) MoveTo(x, y float64) {
	if s.path.Len() > 0 {
		s.path.WriteByte(' ')
	}
	fmt.Fprintf(&s.path, "M%s %s", formatCoord(x), formatCoord(y))
}

func (s *SVGSurface) LineTo(x, y float64) {
	fmt.Fprintf(&s.path, " L%s %s", formatCoord(x), formatCoord(y))
}

func (s *SVGSurface) Stroke(color string, width float64) {
	if s.path.Len() == 0 {
		return
	}
	s.strokes = append(s.strokes, fmt.Sprintf(
		`<path d="%s" fill="none" stroke="%s" stroke-width="%s"/>`,
		s.path.String(), color, formatCoord(width)))
	s.path.Reset()
}

// Empty reports whether nothing has been stroked since the last Clear.
func (s *SVGSurface) Empty() bool {
	return len(s.strokes) == 0
}

// String renders the document.
func (s *SVGSurface) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		formatCoord(s.width), formatCoord(s.height), formatCoord(s.width), formatCoord(s.height))
	for _, stroke := range s.strokes {
		b.WriteString(stroke)
	}
	b.WriteString("</svg>")
	return b.String()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
