package object

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the drawable variants
type Kind string

const (
	KindLine  Kind = "line"
	KindImage Kind = "image"
)

// ToolImage is the tool value carried by every image object on the wire
const ToolImage = "image"

// Style: stroke attributes of a line
type Style struct {
	Stroke             string  `json:"stroke,omitempty" validate:"omitempty,max=50"`
	StrokeWidth        float64 `json:"strokeWidth,omitempty" validate:"omitempty,min=0,max=1000"`
	LineCap            string  `json:"lineCap,omitempty" validate:"omitempty,oneof=butt round square"`
	LineJoin           string  `json:"lineJoin,omitempty" validate:"omitempty,oneof=miter round bevel"`
	Tension            float64 `json:"tension,omitempty" validate:"omitempty,min=0,max=1"`
	CompositeOperation string  `json:"globalCompositeOperation,omitempty" validate:"omitempty,max=50"`
}

// Line: freehand pen or eraser stroke. Points is flat: x0, y0, x1, y1, ...
type Line struct {
	ID     string    `json:"id" validate:"required,max=128"`
	Tool   string    `json:"tool,omitempty" validate:"omitempty,max=32"`
	Points []float64 `json:"points" validate:"required,min=2,max=20000,dive,min=-1000000,max=1000000"`
	Style

	// Extra holds client fields not modelled above, written back out as received
	Extra map[string]json.RawMessage `json:"-"`
}

// Image: placed picture with position, size, scale and rotation
type Image struct {
	ID       string  `json:"id" validate:"required,max=128"`
	Tool     string  `json:"tool"`
	Src      string  `json:"src" validate:"required,max=8388608,datauri|url"`
	X        float64 `json:"x" validate:"min=-1000000,max=1000000"`
	Y        float64 `json:"y" validate:"min=-1000000,max=1000000"`
	Width    float64 `json:"width,omitempty" validate:"omitempty,min=0,max=1000000"`
	Height   float64 `json:"height,omitempty" validate:"omitempty,min=0,max=1000000"`
	ScaleX   float64 `json:"scaleX,omitempty" validate:"omitempty,min=-1000,max=1000"`
	ScaleY   float64 `json:"scaleY,omitempty" validate:"omitempty,min=-1000,max=1000"`
	Rotation float64 `json:"rotation,omitempty" validate:"omitempty,min=-360,max=360"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Object is a drawable placed on a page: exactly one of Line or Image is set.
// Objects have value semantics through Clone; the store and history never share
// point slices between snapshots.
type Object struct {
	Kind  Kind
	Line  *Line
	Image *Image
}

// NewLine wraps a line as an Object
func NewLine(l Line) Object {
	return Object{Kind: KindLine, Line: &l}
}

// NewImage wraps an image as an Object
func NewImage(img Image) Object {
	img.Tool = ToolImage
	return Object{Kind: KindImage, Image: &img}
}

// ID returns the client-generated identifier of the active variant
func (o Object) ID() string {
	switch o.Kind {
	case KindLine:
		if o.Line != nil {
			return o.Line.ID
		}
	case KindImage:
		if o.Image != nil {
			return o.Image.ID
		}
	}
	return ""
}

// Clone returns a fully independent copy
func (o Object) Clone() Object {
	out := Object{Kind: o.Kind}
	if o.Line != nil {
		l := *o.Line
		if o.Line.Points != nil {
			l.Points = make([]float64, len(o.Line.Points))
			copy(l.Points, o.Line.Points)
		}
		l.Extra = cloneExtra(o.Line.Extra)
		out.Line = &l
	}
	if o.Image != nil {
		img := *o.Image
		img.Extra = cloneExtra(o.Image.Extra)
		out.Image = &img
	}
	return out
}

func (o Object) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case KindLine:
		if o.Line == nil {
			return nil, fmt.Errorf("line object without line data")
		}
		typed, err := json.Marshal(o.Line)
		if err != nil {
			return nil, err
		}
		return mergeExtra(typed, o.Line.Extra)
	case KindImage:
		if o.Image == nil {
			return nil, fmt.Errorf("image object without image data")
		}
		img := *o.Image
		img.Tool = ToolImage
		typed, err := json.Marshal(&img)
		if err != nil {
			return nil, err
		}
		return mergeExtra(typed, img.Extra)
	default:
		return nil, fmt.Errorf("unknown object kind: %q", o.Kind)
	}
}

func (o *Object) UnmarshalJSON(data []byte) error {
	var head struct {
		Tool string          `json:"tool"`
		Src  json.RawMessage `json:"src"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("decode object: %w", err)
	}

	if head.Tool == ToolImage || (head.Tool == "" && len(head.Src) > 0) {
		var img Image
		if err := json.Unmarshal(data, &img); err != nil {
			return fmt.Errorf("decode image: %w", err)
		}
		img.Tool = ToolImage
		extra, err := splitExtra(data, imageFields)
		if err != nil {
			return fmt.Errorf("decode image: %w", err)
		}
		img.Extra = extra
		*o = Object{Kind: KindImage, Image: &img}
		return nil
	}

	var l Line
	if err := json.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("decode line: %w", err)
	}
	extra, err := splitExtra(data, lineFields)
	if err != nil {
		return fmt.Errorf("decode line: %w", err)
	}
	l.Extra = extra
	*o = Object{Kind: KindLine, Line: &l}
	return nil
}

// splitExtra returns the members of data whose names are not in known, nil
// when there are none
func splitExtra(data []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}

	var extra map[string]json.RawMessage
	for name, value := range members {
		if known[name] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[name] = value
	}
	return extra, nil
}

// mergeExtra adds extra members to an encoded object. Typed members win.
func mergeExtra(typed []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return typed, nil
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(typed, &members); err != nil {
		return nil, err
	}
	for name, value := range extra {
		if _, exists := members[name]; !exists {
			members[name] = value
		}
	}
	return json.Marshal(members)
}

func cloneExtra(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if extra == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(extra))
	for name, value := range extra {
		out[name] = append(json.RawMessage(nil), value...)
	}
	return out
}
