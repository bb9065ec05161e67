// Package enrich adds optional AI-derived predictions to lead scores
// using AWS Bedrock. The engine works fully without it; enrichment
// failures degrade to unenriched scores.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/domain"
	"github.com/qntmpulse/relationship-engine/internal/pkg/logger"
)

// modelInvoker is the slice of the Bedrock client the enricher uses.
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Enricher calls a Bedrock model to estimate conversion probability,
// churn risk and a suggested next action for a lead.
type Enricher struct {
	client  modelInvoker
	modelID string
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Enrichment is the model's prediction set for one lead.
type Enrichment struct {
	ConversionProbability float64 `json:"conversion_probability"`
	ChurnRisk             float64 `json:"churn_risk"`
	NextAction            string  `json:"next_action"`
}

// New creates a Bedrock-backed enricher.
func New(ctx context.Context, cfg config.EnrichmentConfig) (*Enricher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	e := &Enricher{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.ModelID,
	}
	logger.Info("enricher initialized", "model_id", cfg.ModelID, "region", cfg.Region)
	return e, nil
}

const systemPrompt = `You are a relationship intelligence analyst. Given a
contact's engagement profile and lead score, estimate their likelihood of
converting to a customer, their risk of churning, and the single best next
action.

Respond with ONLY a JSON object, no prose:
{"conversion_probability": 0.0-1.0, "churn_risk": 0.0-1.0, "next_action": "short imperative sentence"}`

// Enrich asks the model for predictions on one lead.
func (e *Enricher) Enrich(ctx context.Context, p *domain.RelationshipProfile, l *domain.LeadScore) (*Enrichment, error) {
	request := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        500,
		System:           systemPrompt,
		Messages: []bedrockMessage{
			{
				Role: "user",
				Content: []bedrockContentBlock{
					{Type: "text", Text: buildLeadContext(p, l)},
				},
			},
		},
		Temperature: 0.2,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	output, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, fmt.Errorf("invoking model: %w", err)
	}

	var response bedrockResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	var text string
	for _, content := range response.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}

	enrichment, err := parseEnrichment(text)
	if err != nil {
		return nil, err
	}
	return enrichment, nil
}

// Apply copies an enrichment onto a lead score.
func Apply(l *domain.LeadScore, e *Enrichment) {
	conv, churn := e.ConversionProbability, e.ChurnRisk
	l.AIConversionProbability = &conv
	l.AIChurnRisk = &churn
	l.AINextActionPrediction = e.NextAction
}

func buildLeadContext(p *domain.RelationshipProfile, l *domain.LeadScore) string {
	var b strings.Builder
	name := p.ContactName
	if name == "" {
		name = p.ContactKey
	}
	fmt.Fprintf(&b, "Contact: %s\n", name)
	fmt.Fprintf(&b, "Relationship score: %d (%s)\n", p.RelationshipScore, p.RelationshipTrend)
	fmt.Fprintf(&b, "Communication frequency: %s\n", p.CommunicationFrequency)
	fmt.Fprintf(&b, "Total interactions: %d (sent %d, received %d)\n",
		p.TotalInteractions, p.TotalEmailsSent, p.TotalEmailsReceived)
	fmt.Fprintf(&b, "Lead score: %d, grade %s, status %s\n", l.Score, l.Grade, l.Status)
	if len(l.BuyingSignals) > 0 {
		b.WriteString("Buying signals:\n")
		for _, s := range l.BuyingSignals {
			fmt.Fprintf(&b, "- %s (confidence %.2f)\n", s.Signal, s.Confidence)
		}
	}
	return b.String()
}

// parseEnrichment extracts the JSON object from the model's reply,
// tolerating surrounding prose.
func parseEnrichment(text string) (*Enrichment, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model reply")
	}

	var e Enrichment
	if err := json.Unmarshal([]byte(text[start:end+1]), &e); err != nil {
		return nil, fmt.Errorf("parsing enrichment: %w", err)
	}
	if e.ConversionProbability < 0 || e.ConversionProbability > 1 ||
		e.ChurnRisk < 0 || e.ChurnRisk > 1 {
		return nil, fmt.Errorf("enrichment probabilities out of range")
	}
	return &e, nil
}
