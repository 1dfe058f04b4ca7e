package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/resilience"
	"github.com/sells-group/siteselect/pkg/anthropic"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

// MaxEnhancedReasons caps the reasons kept from one AI answer.
const MaxEnhancedReasons = 4

// ErrNoRecommendations is returned when the AI answer parses but names no
// usable area.
var ErrNoRecommendations = eris.New("advisor: no recommendations")

const (
	intentSystem    = "You are a business location intelligence expert. Analyze search queries to understand user intent and requirements. Reply with JSON only."
	recommendSystem = "You are a business location consultant specializing in Southern California. Provide detailed, actionable recommendations for business locations. Reply with JSON only."
	reasonsSystem   = "You are a business location expert. Provide specific, actionable reasons for business location suitability."
)

// Option configures a Claude advisor.
type Option func(*Claude)

// WithModel sets the model ID.
func WithModel(model string) Option {
	return func(c *Claude) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxTokens sets the output budget for recommendations. Intent and
// reason calls use a fraction of it.
func WithMaxTokens(n int64) Option {
	return func(c *Claude) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithBreaker guards every API call with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Claude) { c.breaker = b }
}

// Claude asks the Anthropic API. Each operation makes a single attempt.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	breaker   *resilience.Breaker
	log       *zap.Logger
}

// NewClaude creates an advisor backed by client. A nil client makes every
// operation fail, so callers fall back.
func NewClaude(client anthropic.Client, opts ...Option) *Claude {
	c := &Claude{
		client:    client,
		model:     DefaultModel,
		maxTokens: 1024,
		log:       zap.L().With(zap.String("component", "advisor.claude")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Claude) Available() bool {
	return c.client != nil && (c.breaker == nil || c.breaker.State() != resilience.Open)
}

// AnalyzeIntent extracts intent, location preferences and business
// requirements from the query. An empty user_intent takes the fallback
// value; missing lists become empty.
func (c *Claude) AnalyzeIntent(ctx context.Context, query, businessType string) (model.Intent, error) {
	prompt := fmt.Sprintf(`Analyze this business location search query and extract key information.

Query: %q
Business Type: %q

Extract:
1. User Intent (what they're looking for)
2. Location Preferences (beach, urban, suburban, etc.)
3. Business Requirements (foot traffic, accessibility, competition, etc.)

Respond in JSON format:
{"user_intent": "string", "location_preferences": ["..."], "business_requirements": ["..."]}`, query, businessType)

	text, err := c.complete(ctx, "intent", intentSystem, prompt, c.maxTokens/3, 0.3)
	if err != nil {
		return model.Intent{}, err
	}

	var raw struct {
		UserIntent           string   `json:"user_intent"`
		LocationPreferences  []string `json:"location_preferences"`
		BusinessRequirements []string `json:"business_requirements"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return model.Intent{}, eris.Wrap(err, "advisor: parse intent")
	}

	intent := model.Intent{
		UserIntent:           strings.TrimSpace(raw.UserIntent),
		LocationPreferences:  nonEmpty(raw.LocationPreferences),
		BusinessRequirements: nonEmpty(raw.BusinessRequirements),
	}
	if intent.UserIntent == "" {
		intent.UserIntent = FallbackIntent(query, businessType).UserIntent
	}
	return intent, nil
}

// Recommend asks for a confidence score and rationale per candidate. Each
// field falls back on its own: a missing or unparseable confidence takes the
// candidate's deterministic score, and empty text fields take the
// deterministic text. Confidence is clamped to [0, 10].
func (c *Claude) Recommend(ctx context.Context, candidates []Candidate, intent model.Intent, businessType string) ([]model.AdvisorPick, error) {
	if len(candidates) == 0 {
		return nil, ErrNoRecommendations
	}

	areas, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "advisor: encode candidates")
	}

	prompt := fmt.Sprintf(`Analyze these Southern California business locations for a %s business.

User Intent: %s
Location Preferences: %s
Business Requirements: %s

Available Areas:
%s

For each area, provide:
1. Confidence Score (0-10)
2. Reasoning (why this location is good)
3. Key Factors (what makes it suitable)
4. Business Insights (specific advice for this business type)

Use the area names exactly as given. Respond in JSON format:
{"recommendations": [{"area_name": "string", "confidence_score": 0, "reasoning": "string", "key_factors": ["..."], "business_insights": "string"}]}`,
		businessType,
		intent.UserIntent,
		strings.Join(intent.LocationPreferences, ", "),
		strings.Join(intent.BusinessRequirements, ", "),
		areas,
	)

	text, err := c.complete(ctx, "recommend", recommendSystem, prompt, c.maxTokens, 0.4)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Recommendations []struct {
			AreaName         string          `json:"area_name"`
			ConfidenceScore  json.RawMessage `json:"confidence_score"`
			Reasoning        string          `json:"reasoning"`
			KeyFactors       []string        `json:"key_factors"`
			BusinessInsights string          `json:"business_insights"`
		} `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "advisor: parse recommendations")
	}

	byName := make(map[string]Candidate, len(candidates))
	for _, cand := range candidates {
		byName[cand.Area] = cand
	}

	picks := make([]model.AdvisorPick, 0, len(raw.Recommendations))
	for _, r := range raw.Recommendations {
		name := strings.TrimSpace(r.AreaName)
		if name == "" {
			continue
		}
		cand, known := byName[name]
		if !known {
			continue
		}

		pick := model.AdvisorPick{
			AreaName:         name,
			Reasoning:        strings.TrimSpace(r.Reasoning),
			KeyFactors:       nonEmpty(r.KeyFactors),
			BusinessInsights: strings.TrimSpace(r.BusinessInsights),
		}

		score, ok := parseConfidence(r.ConfidenceScore)
		if !ok {
			score = cand.Score
		}
		pick.ConfidenceScore = clampConfidence(score)

		if pick.Reasoning == "" {
			pick.Reasoning = FallbackReasoning(cand)
		}
		if len(pick.KeyFactors) == 0 {
			pick.KeyFactors = append([]string(nil), DefaultKeyFactors...)
		}
		if pick.BusinessInsights == "" {
			pick.BusinessInsights = FallbackInsight(businessType)
		}
		picks = append(picks, pick)
	}

	if len(picks) == 0 {
		return nil, ErrNoRecommendations
	}
	return picks, nil
}

// EnhanceReasons asks for up to MaxEnhancedReasons short reasons. List
// markers are stripped from each line.
func (c *Claude) EnhanceReasons(ctx context.Context, cand Candidate, intent model.Intent, businessType string) ([]string, error) {
	prompt := fmt.Sprintf(`Generate specific, actionable reasons why %s is suitable for a %s business.

Area Metrics:
- Population Density: %d
- Business Density: %d
- Transport Score: %.1f

User Context:
- Intent: %s
- Preferences: %s
- Requirements: %s

Provide 3-4 specific, compelling reasons in a list format, one per line.
Focus on business value and practical benefits.`,
		cand.Area, businessType,
		cand.PopulationDensity, cand.BusinessDensity, cand.TransportScore,
		intent.UserIntent,
		strings.Join(intent.LocationPreferences, ", "),
		strings.Join(intent.BusinessRequirements, ", "),
	)

	text, err := c.complete(ctx, "reasons", reasonsSystem, prompt, c.maxTokens/4, 0.5)
	if err != nil {
		return nil, err
	}

	reasons := parseReasons(text)
	if len(reasons) == 0 {
		return nil, eris.Errorf("advisor: no reasons for %s", cand.Area)
	}
	return reasons, nil
}

func (c *Claude) complete(ctx context.Context, op, system, prompt string, maxTokens int64, temp float64) (string, error) {
	if c.client == nil {
		return "", eris.New("advisor: anthropic client not configured")
	}
	if maxTokens < 128 {
		maxTokens = 128
	}

	req := anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      system,
		Prompt:      prompt,
		Temperature: &temp,
	}

	call := func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.client.CreateMessage(ctx, req)
	}

	var resp *anthropic.MessageResponse
	var err error
	if c.breaker != nil {
		resp, err = resilience.RunVal(ctx, c.breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		return "", eris.Wrapf(err, "advisor: %s", op)
	}

	resp.Usage.LogCost(c.model, op)
	c.log.Debug("advisor response",
		zap.String("operation", op),
		zap.String("stop_reason", resp.StopReason),
	)
	return resp.Text(), nil
}

// cleanJSON extracts a JSON object from text that may contain markdown
// code fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// parseConfidence accepts a JSON number or a numeric string.
func parseConfidence(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// clampConfidence bounds v to [0,10] and rounds to one decimal, ties to even.
func clampConfidence(v float64) float64 {
	v = math.Max(0, math.Min(10, v))
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	if err != nil {
		return v
	}
	return r
}

var listMarker = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

func parseReasons(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		line = strings.Trim(line, "*")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == MaxEnhancedReasons {
			break
		}
	}
	return out
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
