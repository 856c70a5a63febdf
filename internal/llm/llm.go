package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
)

// DefaultMaxSuggestions caps SuggestTags when the caller passes zero.
const DefaultMaxSuggestions = 5

// Client wraps the Anthropic API for tag suggestions.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildSuggestPrompt constructs the system and user prompts for tag suggestion.
func buildSuggestPrompt(text string, known []string, limit int) (system string, user string) {
	system = fmt.Sprintf(`You label content with short tags. Return ONLY a JSON array of at most %d strings.

Rules:
- Each tag is a short lowercase keyword or hyphenated phrase, no spaces
- Prefer tags from the known tags list when they fit the content
- Only invent a new tag when no known tag covers an important topic
- Never use the %% character in a tag
- Order tags from most to least relevant
- Return valid JSON only, no markdown fencing or explanation`, limit)

	var sb strings.Builder
	if len(known) > 0 {
		sb.WriteString("Known tags: ")
		sb.WriteString(strings.Join(known, ", "))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Suggest tags for this content:\n\n")
	sb.WriteString(text)
	user = sb.String()
	return
}

// buildDescribePrompt constructs the prompts for describing a single tag.
func buildDescribePrompt(name string, examples []string) (system string, user string) {
	system = `You write descriptions for tags in a tagging system. Return ONLY a JSON object with one field:

- "desc": one sentence (under 120 characters) saying what content the tag should be applied to

Rules:
- Do not repeat the tag name verbatim at the start of the sentence
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Tag: ")
	sb.WriteString(name)
	sb.WriteString("\n")
	if len(examples) > 0 {
		sb.WriteString("\nRelated tags: ")
		sb.WriteString(strings.Join(examples, ", "))
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// parseSuggestions decodes the model's JSON array and normalizes it: names are
// trimmed, empty or wildcard names dropped, duplicates removed, at most limit kept.
func parseSuggestions(text string, limit int) ([]string, error) {
	text = stripFence(text)

	var raw []string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, errors.Wrapf(err, "parse LLM response as JSON\nraw response: %s", text)
	}

	seen := make(map[string]bool, len(raw))
	tags := make([]string, 0, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" || strings.Contains(name, "%") || seen[name] {
			continue
		}
		seen[name] = true
		tags = append(tags, name)
		if len(tags) == limit {
			break
		}
	}
	return tags, nil
}

// complete sends one prompt pair and returns the first text block of the reply.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "anthropic API call")
	}

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in API response")
}

// SuggestTags asks the model for up to limit tag names describing text. Names from
// known are preferred so suggestions line up with existing tags.
func (c *Client) SuggestTags(ctx context.Context, text string, known []string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultMaxSuggestions
	}
	system, user := buildSuggestPrompt(text, known, limit)
	reply, err := c.complete(ctx, system, user, 1024)
	if err != nil {
		return nil, err
	}
	return parseSuggestions(reply, limit)
}

type describedTag struct {
	Desc string `json:"desc"`
}

// DescribeTag asks the model for a one-sentence description of a tag name.
func (c *Client) DescribeTag(ctx context.Context, name string, related []string) (string, error) {
	system, user := buildDescribePrompt(name, related)
	reply, err := c.complete(ctx, system, user, 256)
	if err != nil {
		return "", err
	}

	reply = stripFence(reply)
	var d describedTag
	if err := json.Unmarshal([]byte(reply), &d); err != nil {
		return "", errors.Wrapf(err, "parse LLM response as JSON\nraw response: %s", reply)
	}
	return strings.TrimSpace(d.Desc), nil
}
