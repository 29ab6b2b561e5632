package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ibtisamdev/reva-sub001/internal/conversation"
	"github.com/ibtisamdev/reva-sub001/pkg/llm"
	"github.com/ibtisamdev/reva-sub001/pkg/logging"
)

const defaultClassifierTimeout = 10 * time.Second

// ClassifierCapability is the underlying labeller. It may fail.
type ClassifierCapability interface {
	Classify(ctx context.Context, history []conversation.Message, latest string, scope conversation.Scope) (Intent, float64, error)
}

// IntentClassifier never fails: any capability error, unknown label or
// invalid confidence degrades to (small_talk, 0), which routes to clarify.
type IntentClassifier struct {
	capability ClassifierCapability
	timeout    time.Duration
	maxHistory int
	logger     logging.Logger
}

type ClassifierConfig struct {
	Capability ClassifierCapability
	Timeout    time.Duration
	MaxHistory int
	Logger     logging.Logger
}

func NewIntentClassifier(cfg ClassifierConfig) *IntentClassifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultClassifierTimeout
	}
	return &IntentClassifier{
		capability: cfg.Capability,
		timeout:    cfg.Timeout,
		maxHistory: cfg.MaxHistory,
		logger:     cfg.Logger,
	}
}

func (c *IntentClassifier) Classify(ctx context.Context, view conversation.View) (Intent, float64) {
	if c == nil || c.capability == nil {
		classificationsTotal.WithLabelValues(string(IntentSmallTalk), "degraded").Inc()
		return IntentSmallTalk, 0
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	intent, confidence, err := c.capability.Classify(ctx, capHistory(view.History, c.maxHistory), view.Latest, view.Scope)
	classifierDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		err = validateClassification(intent, confidence)
	}
	if err != nil {
		if c.logger != nil {
			c.logger.WithError(err).WithField("store_id", view.Scope.StoreID).Warn("Intent classification degraded")
		}
		classificationsTotal.WithLabelValues(string(IntentSmallTalk), "degraded").Inc()
		return IntentSmallTalk, 0
	}
	classificationsTotal.WithLabelValues(string(intent), "ok").Inc()
	return intent, confidence
}

func validateClassification(intent Intent, confidence float64) error {
	if _, ok := ParseIntent(string(intent)); !ok {
		return fmt.Errorf("unknown intent %q", intent)
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence %v out of range", confidence)
	}
	return nil
}

func capHistory(history []conversation.Message, limit int) []conversation.Message {
	if limit > 0 && len(history) > limit {
		return history[len(history)-limit:]
	}
	return history
}

const classifierPrompt = `You label messages sent to the shopping assistant of an online store named %q.
Choose exactly one intent:
- product_search: looking for a specific product or browsing the catalog
- product_recommendation: asking for suggestions, alternatives or what goes well together
- order_status: asking where an order is, tracking, delivery dates
- faq_support: store policies, shipping, returns, sizing, how-to questions
- complaint: unhappy about an order, product or service
- small_talk: greetings, thanks, anything else

Reply with JSON only: {"intent": "<label>", "confidence": <0.0-1.0>}`

// LLMClassifier asks a utility model for a JSON label.
type LLMClassifier struct {
	llm llm.Provider
}

func NewLLMClassifier(provider llm.Provider) *LLMClassifier {
	return &LLMClassifier{llm: provider}
}

func (l *LLMClassifier) Classify(ctx context.Context, history []conversation.Message, latest string, scope conversation.Scope) (Intent, float64, error) {
	if l == nil || l.llm == nil {
		return "", 0, errors.New("classifier llm is not configured")
	}
	storeName := scope.StoreName
	if storeName == "" {
		storeName = "the store"
	}
	messages := []llm.Message{{Role: llm.RoleSystem, Content: fmt.Sprintf(classifierPrompt, storeName)}}
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: latest})

	start := time.Now()
	text, err := llm.CollectText(ctx, l.llm, messages)
	llmDuration.WithLabelValues("classify").Observe(time.Since(start).Seconds())
	if err != nil {
		llmCallsTotal.WithLabelValues("classify", "error").Inc()
		return "", 0, fmt.Errorf("classify: %w", err)
	}
	llmCallsTotal.WithLabelValues("classify", "success").Inc()
	return parseClassification(text)
}

type classification struct {
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence"`
}

// parseClassification reads the first JSON object in text. Code fences and
// surrounding prose are tolerated.
func parseClassification(text string) (Intent, float64, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", 0, fmt.Errorf("no JSON object in classifier output %q", text)
	}
	var out classification
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return "", 0, fmt.Errorf("decode classifier output: %w", err)
	}
	if out.Confidence == nil {
		return "", 0, errors.New("classifier output missing confidence")
	}
	intent := Intent(strings.ToLower(strings.TrimSpace(out.Intent)))
	if err := validateClassification(intent, *out.Confidence); err != nil {
		return "", 0, err
	}
	return intent, *out.Confidence, nil
}

var (
	greetingPattern = regexp.MustCompile(`^(hi|hey|hello|good (morning|afternoon|evening)|thanks|thank you|cheers|bye)\b`)

	// "best" only signals a recommendation next to a product cue, not in
	// "best regards" or "best way to".
	bestProductPattern = regexp.MustCompile(`\bbest[ -](sell(ing|ers?)|\w+ for|one|options?|choices?|gifts?)\b`)

	complaintTerms      = []string{"refund", "broken", "damaged", "complain", "terrible", "awful", "wrong item", "never arrived", "unacceptable", "disappointed"}
	orderTerms          = []string{"my order", "tracking", "track my", "shipped yet", "delivery date", "where is my", "where's my", "order status"}
	recommendationTerms = []string{"recommend", "suggest", "similar to", "goes with", "alternative", "what should i buy", "gift for"}
	searchTerms         = []string{"looking for", "do you have", "do you sell", "search", "find ", "show me", "in stock", "price of", "how much is"}
	faqTerms            = []string{"return policy", "returns", "shipping", "how do i", "how long", "policy", "warranty", "exchange", "size guide", "payment"}
)

// KeywordClassifier labels messages with fixed phrase rules. It serves
// deployments without a classifier model.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, _ []conversation.Message, latest string, _ conversation.Scope) (Intent, float64, error) {
	text := strings.ToLower(strings.TrimSpace(latest))
	if text == "" {
		return "", 0, errors.New("empty message")
	}
	_, hasOrderID := ExtractOrderID(latest)
	switch {
	case containsAny(text, complaintTerms):
		return IntentComplaint, 0.8, nil
	case hasOrderID:
		return IntentOrderStatus, 0.9, nil
	case containsAny(text, orderTerms):
		return IntentOrderStatus, 0.75, nil
	case containsAny(text, recommendationTerms), bestProductPattern.MatchString(text):
		return IntentProductRecommendation, 0.75, nil
	case containsAny(text, searchTerms):
		return IntentProductSearch, 0.7, nil
	case containsAny(text, faqTerms):
		return IntentFAQSupport, 0.7, nil
	case greetingPattern.MatchString(text):
		return IntentSmallTalk, 0.8, nil
	default:
		return IntentSmallTalk, 0.3, nil
	}
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
