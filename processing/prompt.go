package processing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GenerateSchema generates a JSON schema for structured outputs
func GenerateSchema[T any]() interface{} {
	// Structured Outputs uses a subset of JSON schema
	// These flags are necessary to comply with the subset
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// EnhancedPrompt is the structured output of the prompt enhancement call.
type EnhancedPrompt struct {
	Prompt string `json:"prompt" jsonschema_description:"A single continuous high-quality image-to-video generation prompt with explicit camera movement and subject motion."`
}

var enhancedPromptSchema = GenerateSchema[EnhancedPrompt]()

// Enabled reports whether prompt enhancement is configured. Without an
// API key submissions use the plain shot-type template.
func Enabled() bool {
	return os.Getenv("OPENAI_API_KEY") != "" && os.Getenv("DISABLE_PROMPT_ENHANCEMENT") == ""
}

// EnhancePrompt expands a shot-type template into a richer motion
// prompt for the video model. The two keyframes anchor the clip, so the
// prompt only needs to describe the motion between them.
func EnhancePrompt(ctx context.Context, shotTypeName, template string) (string, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	prompt := fmt.Sprintf(`You write prompts for an image-to-video model that interpolates between two still keyframes.
Shot type: "%s".
Base prompt template: "%s".

Rewrite the template into one continuous, hyper-detailed prompt. It must:
- keep the shot type's camera language (framing, movement)
- describe smooth motion from the first frame to the last
- avoid mentioning the frames themselves
- stay under 500 characters`, shotTypeName, template)

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "enhanced_prompt",
		Description: openai.String("An enhanced image-to-video generation prompt"),
		Schema:      enhancedPromptSchema,
		Strict:      openai.Bool(true),
	}

	chatCompletion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModelGPT4oMini,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	var enhanced EnhancedPrompt
	if err := json.Unmarshal([]byte(chatCompletion.Choices[0].Message.Content), &enhanced); err != nil {
		return "", fmt.Errorf("failed to parse OpenAI JSON response: %w", err)
	}

	result := strings.TrimSpace(enhanced.Prompt)
	if result == "" {
		return "", fmt.Errorf("OpenAI returned empty prompt")
	}
	return result, nil
}
