package chat

import "fmt"

// Intent is a classified purpose drawn from a closed set.
type Intent string

const (
	IntentProductSearch         Intent = "product_search"
	IntentProductRecommendation Intent = "product_recommendation"
	IntentOrderStatus           Intent = "order_status"
	IntentFAQSupport            Intent = "faq_support"
	IntentComplaint             Intent = "complaint"
	IntentSmallTalk             Intent = "small_talk"
)

var knownIntents = map[Intent]struct{}{
	IntentProductSearch:         {},
	IntentProductRecommendation: {},
	IntentOrderStatus:           {},
	IntentFAQSupport:            {},
	IntentComplaint:             {},
	IntentSmallTalk:             {},
}

// ParseIntent reports whether label names a known intent.
func ParseIntent(label string) (Intent, bool) {
	intent := Intent(label)
	_, ok := knownIntents[intent]
	return intent, ok
}

// ClarifyThreshold is the lowest confidence that routes to a main handler.
const ClarifyThreshold = 0.6

// Node names one terminal handler of the turn graph.
type Node uint8

const (
	NodeGeneral Node = iota
	NodeSearch
	NodeRecommend
	NodeSupport
	NodeClarify
)

var nodeNames = [...]string{
	NodeGeneral:   "general",
	NodeSearch:    "search",
	NodeRecommend: "recommend",
	NodeSupport:   "support",
	NodeClarify:   "clarify",
}

func (n Node) String() string {
	if int(n) < len(nodeNames) {
		return nodeNames[n]
	}
	return fmt.Sprintf("node(%d)", uint8(n))
}

func (n Node) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *Node) UnmarshalText(text []byte) error {
	for i, name := range nodeNames {
		if name == string(text) {
			*n = Node(i)
			return nil
		}
	}
	return fmt.Errorf("unknown node %q", text)
}

// Route picks the handler for a classification. Confidence strictly below
// ClarifyThreshold always clarifies; unmapped intents fall to general.
func Route(intent Intent, confidence float64) Node {
	// Written this way so NaN clarifies too.
	if !(confidence >= ClarifyThreshold) {
		return NodeClarify
	}
	switch intent {
	case IntentProductSearch:
		return NodeSearch
	case IntentProductRecommendation:
		return NodeRecommend
	case IntentOrderStatus, IntentFAQSupport, IntentComplaint:
		return NodeSupport
	case IntentSmallTalk:
		return NodeGeneral
	default:
		return NodeGeneral
	}
}
