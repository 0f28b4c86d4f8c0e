package object

import "encoding/json"

// Validation limit constants
const (
	MaxIDLength      = 128
	MaxPageKeyLength = 128
	MaxPointValues   = 20000
	MaxCoordinate    = 1000000
	MinCoordinate    = -1000000
)

// Tools a line may carry. Empty is accepted and treated as a pen stroke.
var AllowedLineTools = map[string]bool{
	"":       true,
	"pen":    true,
	"eraser": true,
}

// Member names decoded into the typed variants. Anything else lands in Extra.
var (
	lineFields = map[string]bool{
		"id": true, "tool": true, "points": true,
		"stroke": true, "strokeWidth": true, "lineCap": true, "lineJoin": true,
		"tension": true, "globalCompositeOperation": true,
	}
	imageFields = map[string]bool{
		"id": true, "tool": true, "src": true, "x": true, "y": true,
		"width": true, "height": true, "scaleX": true, "scaleY": true, "rotation": true,
	}
)

// markupFields: string fields of each variant that must not contain markup.
// Src is excluded, URLs legitimately carry '&'.
// String-valued extra members are checked too.
func markupFields(o Object) map[string]string {
	var fields map[string]string
	var extra map[string]json.RawMessage
	switch o.Kind {
	case KindLine:
		fields = map[string]string{
			"id":                       o.Line.ID,
			"tool":                     o.Line.Tool,
			"stroke":                   o.Line.Stroke,
			"globalCompositeOperation": o.Line.CompositeOperation,
		}
		extra = o.Line.Extra
	case KindImage:
		fields = map[string]string{
			"id": o.Image.ID,
		}
		extra = o.Image.Extra
	default:
		return nil
	}

	for name, value := range extra {
		var str string
		if json.Unmarshal(value, &str) == nil {
			fields[name] = str
		}
	}
	return fields
}
