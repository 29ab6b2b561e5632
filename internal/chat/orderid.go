package chat

import (
	"regexp"
	"strings"

	"github.com/ibtisamdev/reva-sub001/internal/conversation"
)

const minOrderIDLength = 3

var orderIDPattern = regexp.MustCompile(`(?i)(?:#|\border\s+(?:(?:number|num|no\.?|id)\s*)?#?\s*)([a-z]*-?\d[\w-]*)`)

// ExtractOrderID finds an order reference such as "#1001", "order 1001",
// "order number 1001" or "order no. A-1001".
func ExtractOrderID(text string) (string, bool) {
	for _, m := range orderIDPattern.FindAllStringSubmatch(text, -1) {
		// Quantities like "order 5 shirts" are not order numbers.
		if id := strings.TrimRight(m[1], "-_"); len(id) >= minOrderIDLength {
			return id, true
		}
	}
	return "", false
}

// findOrderID checks the latest message, then earlier user messages newest
// first.
func findOrderID(view conversation.View) (string, bool) {
	if id, ok := ExtractOrderID(view.Latest); ok {
		return id, true
	}
	for i := len(view.History) - 1; i >= 0; i-- {
		if view.History[i].Role != conversation.RoleUser {
			continue
		}
		if id, ok := ExtractOrderID(view.History[i].Content); ok {
			return id, true
		}
	}
	return "", false
}
