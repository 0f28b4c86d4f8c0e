package session

import (
	"math"
	"sync/atomic"

	"github.com/lucasb-eyer/go-colorful"
)

const goldenRatioConjugate = 0.618033988749895

// lightness cycles so sessions whose hues land close together still differ
var lightness = [...]float64{0.55, 0.42, 0.68}

var colorSeq atomic.Uint64

// nextColor hands out the session colors in join order
func nextColor() string {
	return colorAt(colorSeq.Add(1) - 1)
}

func colorAt(n uint64) string {
	hue := math.Mod(float64(n)*goldenRatioConjugate, 1) * 360
	return colorful.Hsl(hue, 0.85, lightness[n%uint64(len(lightness))]).Hex()
}
