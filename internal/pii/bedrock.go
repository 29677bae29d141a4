package pii

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/wolfman30/insight-tool/pkg/logging"
)

// BedrockConverseAPI is the subset of the Bedrock runtime client used here.
type BedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

const bedrockSystemPrompt = `You find personally identifying information in interview transcript text.
Return ONLY a JSON array. Each element is {"text": "<exact substring>", "type": "<TYPE>", "score": <0..1>}.
TYPE is one of PERSON, LOCATION, ORGANIZATION, EMAIL_ADDRESS, PHONE_NUMBER.
Copy "text" exactly as it appears in the input. Return [] when nothing is found.`

// BedrockDetector asks a Bedrock-hosted model to name PII substrings and
// then locates them in the text.
type BedrockDetector struct {
	client  BedrockConverseAPI
	modelID string
	logger  *logging.Logger
}

// NewBedrockDetector creates an LLM-backed recogniser.
func NewBedrockDetector(client BedrockConverseAPI, modelID string, logger *logging.Logger) *BedrockDetector {
	if client == nil {
		panic("pii: bedrock converse client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BedrockDetector{client: client, modelID: modelID, logger: logger}
}

type bedrockFinding struct {
	Text  string  `json:"text"`
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// Detect implements Detector.
func (d *BedrockDetector) Detect(ctx context.Context, text string) ([]Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if strings.TrimSpace(d.modelID) == "" {
		return nil, errors.New("pii: bedrock model id is required")
	}

	out, err := d.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(d.modelID),
		System: []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: bedrockSystemPrompt},
		},
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: text},
				},
			},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(1024),
			Temperature: aws.Float32(0.0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pii: bedrock converse: %w", err)
	}

	findings, err := parseFindings(extractResponseText(out))
	if err != nil {
		return nil, err
	}
	return locateFindings(text, findings, d.logger), nil
}

func extractResponseText(resp *bedrockruntime.ConverseOutput) string {
	if resp == nil || resp.Output == nil {
		return ""
	}
	msg, ok := resp.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			sb.WriteString(tb.Value)
		}
	}
	return sb.String()
}

func parseFindings(text string) ([]bedrockFinding, error) {
	// Models sometimes wrap the array in a markdown fence.
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end <= start {
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("pii: bedrock response is not a JSON array: %q", truncate(text, 120))
	}
	var findings []bedrockFinding
	if err := json.Unmarshal([]byte(text[start:end+1]), &findings); err != nil {
		return nil, fmt.Errorf("pii: decode bedrock findings: %w", err)
	}
	return findings, nil
}

// locateFindings turns quoted substrings into offsets. Every occurrence is
// reported; the same substring named twice is reported once.
func locateFindings(text string, findings []bedrockFinding, logger *logging.Logger) []Entity {
	type key struct{ start, end int }
	seen := make(map[key]bool)
	var out []Entity
	for _, f := range findings {
		needle := strings.TrimSpace(f.Text)
		if needle == "" || f.Type == "" {
			continue
		}
		from, found := 0, false
		for {
			idx := strings.Index(text[from:], needle)
			if idx < 0 {
				break
			}
			bs := from + idx
			be := bs + len(needle)
			from = be
			found = true
			start, end := runeSpan(text, bs, be)
			k := key{start, end}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, Entity{Type: strings.ToUpper(f.Type), Start: start, End: end, Score: clampScore(f.Score)})
		}
		if !found {
			logger.Warn("pii: bedrock finding not present in text", "type", f.Type)
		}
	}
	return out
}

func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
