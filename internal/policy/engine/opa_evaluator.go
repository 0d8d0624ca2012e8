package engine

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"

	"dm-relay/internal/chat"
)

const eligibilityQuery = "data.dmrelay.eligibility.allow"

// Default Rego policy: only direct messages from humans are eligible.
const defaultRegoPolicy = `package dmrelay.eligibility

default allow = false

allow if {
	not input.message.from_bot
	not input.message.in_guild
}
`

// OPAEvaluator evaluates message eligibility with a compiled Rego policy.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the default policy.
func NewOPAEvaluator(ctx context.Context) (*OPAEvaluator, error) {
	return newOPAEvaluator(ctx, defaultRegoPolicy)
}

// NewOPAEvaluatorFromFile compiles the Rego policy at path. An empty path selects the default policy.
// The file must define data.dmrelay.eligibility.allow.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return newOPAEvaluator(ctx, string(src))
}

func newOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	pq, err := rego.New(
		rego.Query(eligibilityQuery),
		rego.Module("eligibility.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile eligibility policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// Eligible evaluates the policy for msg. Errors and undefined results fall back to the built-in rule.
func (e *OPAEvaluator) Eligible(ctx context.Context, msg chat.Message) bool {
	allowed, err := e.evaluate(ctx, msg)
	if err != nil {
		log.Printf("policy: evaluation failed: %v, using default rule", err)
		return msg.Direct()
	}
	return allowed
}

// HealthCheck evaluates the compiled policy against a plain direct message. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.evaluate(ctx, chat.Message{Content: "ping"})
	return err
}

func (e *OPAEvaluator) evaluate(ctx context.Context, msg chat.Message) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(msg)))
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("policy query returned no result")
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy result is %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}

// buildInput exposes message attributes to the policy. The sender id is deliberately absent.
func buildInput(msg chat.Message) map[string]interface{} {
	return map[string]interface{}{
		"message": map[string]interface{}{
			"from_bot":       msg.FromBot,
			"in_guild":       msg.InGuild,
			"content_length": len([]rune(msg.Content)),
		},
	}
}
