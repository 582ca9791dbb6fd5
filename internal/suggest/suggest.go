// Package suggest asks an LLM provider to rewrite item content.
//
// Suggestions never touch the repository: a caller runs one as a Task and
// decides whether to apply the returned text to its draft.
package suggest

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
)

// Settings keys read by FromSettings.
const (
	SettingProvider = "llm_provider"
	SettingAPIKey   = "llm_api_key"
	SettingModel    = "llm_model"
)

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o"

	defaultMaxTokens = 4096
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = stderrors.New("no LLM API key configured; set llm_api_key in settings")

// Action selects the rewrite instruction sent to the model.
type Action string

const (
	ActionImprove  Action = "improve"
	ActionConcise  Action = "concise"
	ActionExamples Action = "examples"
	ActionCustom   Action = "custom"
)

// Actions lists the actions in menu order.
func Actions() []Action {
	return []Action{ActionImprove, ActionConcise, ActionExamples, ActionCustom}
}

// ParseAction converts a user-supplied action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Actions() {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q (want improve, concise, examples or custom)", s)
}

// Label is the short menu text for the action.
func (a Action) Label() string {
	switch a {
	case ActionImprove:
		return "Improve this prompt"
	case ActionConcise:
		return "Make it more concise"
	case ActionExamples:
		return "Add examples"
	case ActionCustom:
		return "Custom request..."
	}
	return string(a)
}

// SystemPrompt is the instruction sent as the system message.
// Custom requests carry their instruction in the user message instead.
func (a Action) SystemPrompt() string {
	switch a {
	case ActionImprove:
		return "You are an expert prompt engineer. Improve the following prompt to be clearer, " +
			"more effective, and better structured. Maintain the original intent while " +
			"enhancing clarity and specificity. Return only the improved prompt, no explanations."
	case ActionConcise:
		return "You are an expert editor. Make the following prompt more concise while " +
			"preserving all essential information and functionality. Remove redundancy " +
			"and verbosity. Return only the revised prompt, no explanations."
	case ActionExamples:
		return "You are an expert prompt engineer. Add 2-3 concrete examples to the following " +
			"prompt to better illustrate the expected behavior. The examples should be " +
			"practical and relevant. Return only the enhanced prompt with examples, no explanations."
	}
	return ""
}

// Request is one suggestion request.
type Request struct {
	Action      Action
	Instruction string // used with ActionCustom
	Content     string
}

// Validate checks that the request can be sent.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return stderrors.New("content is empty")
	}
	if r.Action == ActionCustom && strings.TrimSpace(r.Instruction) == "" {
		return stderrors.New("custom request needs an instruction")
	}
	if _, err := ParseAction(string(r.Action)); err != nil {
		return err
	}
	return nil
}

// UserMessage renders the user turn for the request.
func (r Request) UserMessage() string {
	if r.Action == ActionCustom && r.Instruction != "" {
		return fmt.Sprintf("Request: %s\n\nContent to process:\n%s", r.Instruction, r.Content)
	}
	return "Content to process:\n" + r.Content
}

// Suggester returns rewritten content for a request.
type Suggester interface {
	Suggest(ctx context.Context, req Request) (string, error)
}

// NewClient returns a Suggester for provider. Unknown providers fall back
// to Anthropic. An empty model selects the provider default.
func NewClient(provider, apiKey, model string) (Suggester, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, model), nil
	default:
		return NewAnthropicClient(apiKey, model), nil
	}
}

// SettingsReader is the subset of the settings store FromSettings needs.
type SettingsReader interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// FromSettings builds a client from the llm_* settings.
func FromSettings(ctx context.Context, s SettingsReader) (Suggester, error) {
	values := make(map[string]string, 3)
	for _, key := range []string{SettingProvider, SettingAPIKey, SettingModel} {
		v, _, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		values[key] = v
	}
	return NewClient(values[SettingProvider], values[SettingAPIKey], values[SettingModel])
}
