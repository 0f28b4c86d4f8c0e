package middleware

import (
	"fmt"
)

// Limits: resource limits enforced by the relay
type Limits struct {
	MaxMessageSize    int
	MaxObjectsPerPage int
	MaxPages          int
	MaxObjectDepth    int
	MaxObjectElements int
	HistoryLimit      int
	MessagesPerSecond float64
	BurstSize         int
}

// DefaultLimits: the limits used when nothing is configured
func DefaultLimits() *Limits {
	return &Limits{
		MaxMessageSize:    2 << 20,
		MaxObjectsPerPage: 5000,
		MaxPages:          100,
		MaxObjectDepth:    4,
		MaxObjectElements: 64,
		HistoryLimit:      200,
		MessagesPerSecond: 60,
		BurstSize:         120,
	}
}

// CanAddObject: checks if a page holding count objects has room for one more
func (l *Limits) CanAddObject(count int) bool {
	return l.MaxObjectsPerPage <= 0 || count < l.MaxObjectsPerPage
}

// CanAddPage: checks if another page may be created
func (l *Limits) CanAddPage(pageCount int) bool {
	return l.MaxPages <= 0 || pageCount < l.MaxPages
}

// ValidateMessageSize: checks if a message is within the size limit
func (l *Limits) ValidateMessageSize(msgSize int) bool {
	return msgSize <= l.MaxMessageSize
}

// ValidateObjectComplexity: validates decoded message complexity.
// Checks nesting depth and key count, not array lengths. Zero disables a check.
func (l *Limits) ValidateObjectComplexity(data map[string]interface{}) error {
	depth, keys := validateComplexity(data, 0)

	if l.MaxObjectDepth > 0 && depth > l.MaxObjectDepth {
		return fmt.Errorf("message nesting too deep: %d levels (max %d)", depth, l.MaxObjectDepth)
	}

	if l.MaxObjectElements > 0 && keys > l.MaxObjectElements {
		return fmt.Errorf("message too complex: %d keys (max %d)", keys, l.MaxObjectElements)
	}

	return nil
}

// validateComplexity: recursively checks depth and counts keys
func validateComplexity(data interface{}, currentDepth int) (int, int) {
	maxDepth := currentDepth
	keyCount := 0

	switch v := data.(type) {
	case map[string]interface{}:
		keyCount = len(v)
		for _, val := range v {
			subDepth, subKeys := validateComplexity(val, currentDepth+1)
			if subDepth > maxDepth {
				maxDepth = subDepth
			}
			keyCount += subKeys
		}
	case []interface{}:
		for _, val := range v {
			subDepth, subKeys := validateComplexity(val, currentDepth+1)
			if subDepth > maxDepth {
				maxDepth = subDepth
			}
			keyCount += subKeys
		}
	}

	return maxDepth, keyCount
}
