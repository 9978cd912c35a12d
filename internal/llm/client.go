// Package llm provides tiered Anthropic API access for Parley.
// All model traffic flows through a two-tier rate limiter: a fast tier for
// cheap, highly parallel calls and a reasoning tier for scarce, expensive
// ones.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Tier selects which model class handles a request.
type Tier string

const (
	// TierFast is the lightweight model tier for pillar analyses and
	// simulated counterparty replies.
	TierFast Tier = "fast"
	// TierReasoning is the heavyweight model tier for synthesis,
	// disruption analysis, and decision scoring.
	TierReasoning Tier = "reasoning"
)

// Default models per tier.
const (
	// DefaultFastModel is the default fast-tier model.
	DefaultFastModel = string(anthropic.ModelClaude3_5Haiku20241022)
	// DefaultReasoningModel is the default reasoning-tier model.
	DefaultReasoningModel = string(anthropic.ModelClaudeSonnet4_20250514)
)

// Request describes one completion call.
type Request struct {
	// Tier selects the model class.
	Tier Tier
	// System is the optional system prompt.
	System string
	// Prompt is the user prompt.
	Prompt string
	// MaxTokens bounds the response length. Zero means the package default.
	MaxTokens int64
}

// Completer is the minimal completion interface consumed by the
// orchestration components. Tests substitute fakes for it.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	// FastModel is the fast-tier model name. Empty uses DefaultFastModel.
	FastModel string
	// ReasoningModel is the reasoning-tier model name. Empty uses
	// DefaultReasoningModel.
	ReasoningModel string
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// Limiter bounds concurrent calls. Required.
	Limiter *Limiter
}

// Client wraps the Anthropic SDK client with tiered models and rate limiting.
type Client struct {
	inner     anthropic.Client
	fast      anthropic.Model
	reasoning anthropic.Model
	limiter   *Limiter
}

// NewClient creates a new tiered Anthropic API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}

	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	fast := anthropic.Model(cfg.FastModel)
	if fast == "" {
		fast = anthropic.Model(DefaultFastModel)
	}
	reasoning := anthropic.Model(cfg.ReasoningModel)
	if reasoning == "" {
		reasoning = anthropic.Model(DefaultReasoningModel)
	}

	if cfg.UseAWSBedrock {
		fast = translateModelForBedrock(fast)
		reasoning = translateModelForBedrock(reasoning)
	}

	return &Client{
		inner:     anthropic.NewClient(opts...),
		fast:      fast,
		reasoning: reasoning,
		limiter:   cfg.Limiter,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to Bedrock
// inference profile format: us.anthropic.{model}-v1:0
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaudeOpus4_5_20251101:   "us.anthropic.claude-opus-4-5-20251101-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}

	// Not in map: might already be Bedrock format or a custom model.
	return model
}

// model returns the configured model for a tier.
func (c *Client) model(tier Tier) anthropic.Model {
	if tier == TierReasoning {
		return c.reasoning
	}
	return c.fast
}

// defaultMaxTokens bounds responses when the caller does not set a limit.
const defaultMaxTokens = 4096

// Complete executes one completion under the tier's rate limit and returns
// the concatenated text blocks of the response. The limiter slot is released
// on every exit path.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	release, err := c.limiter.Acquire(ctx, req.Tier)
	if err != nil {
		return "", fmt.Errorf("acquire %s slot: %w", req.Tier, err)
	}
	defer release()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     c.model(req.Tier),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("API call failed: %w", err)
	}

	usageFromContext(ctx).Add(req.Tier, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var result strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			result.WriteString(variant.Text)
		}
	}

	return result.String(), nil
}
