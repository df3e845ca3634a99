// Package intent turns a natural-language command into a structured
// workflow request using a single LLM round trip.
package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/prefpilot/api/schemas"
	"github.com/xkilldash9x/prefpilot/internal/llmutil"
	"go.uber.org/zap"
)

// TextCompleter is the one LLM capability the classifier needs.
type TextCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// systemInstruction pins the model to the fixed output schema. The
// model must answer with JSON only; the defensive parser still strips
// fences when it doesn't.
const systemInstruction = `You are a browser-automation intent classifier for a health-data preference application.
Given a user command, respond with a single JSON object and nothing else:

{
  "workflow_type": "mhmd_only" | "swagger_only" | "combined",
  "name": string or null,
  "email": string or null,
  "preference": "OPT_IN" | "OPT_OUT" | null
}

Rules:
- "mhmd_only": the user wants to change, toggle or set the MHMD privacy preference in the web UI.
- "swagger_only": the user wants to test or verify the API through the Swagger/API documentation page.
- "combined": the user wants both the preference change and the API verification.
- Extract name, email and preference only when the command states them; otherwise use null.
- If the user asks for a random or made-up email, set "email" to "random".
- Opting in, enabling, or allowing data sharing means "OPT_IN"; opting out, disabling, or revoking means "OPT_OUT".`

// ClassificationError reports an unusable model reply. RawReply carries
// the model's verbatim output so the caller can surface it.
type ClassificationError struct {
	RawReply string
	Err      error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("intent classification failed: %v (raw reply: %s)",
		e.Err, llmutil.TruncateString(e.RawReply, 300))
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Classifier extracts a ClassifiedIntent from free-form text.
type Classifier struct {
	llm TextCompleter
	log *zap.Logger
}

// NewClassifier wires a Classifier over the given completer.
func NewClassifier(llm TextCompleter, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		llm: llm,
		log: logger.Named("classifier"),
	}
}

// Classify runs one model call and parses the reply defensively. There
// are no retries; a bad reply surfaces as a *ClassificationError.
func (c *Classifier) Classify(ctx context.Context, command string) (schemas.ClassifiedIntent, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return schemas.ClassifiedIntent{}, &ClassificationError{Err: fmt.Errorf("empty command")}
	}

	reply, err := c.llm.Complete(ctx, systemInstruction, command)
	if err != nil {
		return schemas.ClassifiedIntent{}, fmt.Errorf("calling the classification model: %w", err)
	}

	parsed, err := llmutil.ParseJSONResponse[schemas.ClassifiedIntent](reply)
	if err != nil {
		c.log.Warn("Model reply was not parseable JSON.",
			zap.String("reply", llmutil.TruncateString(reply, 300)))
		return schemas.ClassifiedIntent{}, &ClassificationError{RawReply: reply, Err: err}
	}

	intent := *parsed
	if intent.WorkflowType == "" {
		intent.WorkflowType = schemas.WorkflowMHMDOnly
	}
	if !intent.WorkflowType.IsValid() {
		return schemas.ClassifiedIntent{}, &ClassificationError{
			RawReply: reply,
			Err:      fmt.Errorf("unknown workflow_type %q", intent.WorkflowType),
		}
	}
	if intent.Preference != nil && !intent.Preference.IsValid() {
		// An unusable preference is dropped rather than fatal; the engine
		// falls back to the toggle law.
		c.log.Warn("Dropping invalid preference from model reply.",
			zap.String("preference", string(*intent.Preference)))
		intent.Preference = nil
	}

	c.log.Info("Command classified.",
		zap.String("workflow_type", string(intent.WorkflowType)),
		zap.Bool("has_name", intent.Name != nil),
		zap.Bool("has_email", intent.Email != nil),
		zap.Bool("has_preference", intent.Preference != nil))
	return intent, nil
}
