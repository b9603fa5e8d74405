// Package extract converts uploaded medical documents (PDFs and images) into
// structured JSON using a multimodal OpenAI model.
package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// defaultInstruction asks the model for one combined strict-JSON document
// covering every input page. The wording drives downstream call quality, so
// changes here should be validated against real documents.
const defaultInstruction = "Extract key information from ALL provided documents and return ONE combined strict JSON with fields: " +
	"title (use first document's title), date (use first document's date), " +
	"parties_or_patient (combine unique names), diagnoses_or_topics (combine unique items), " +
	"medications_or_items (combine unique items into array) add everything that is related to medications, form, dosage, duration, instructions, " +
	"recommendations (combine all recommendations into one string) and full_text (combine all texts). " +
	"If a field is unknown, use null or []. Try to get as much information as possible. " +
	"Because in future you will be asked to explain this information for a person who doesn't know anything about the document and he is not a doctor. " +
	"You will be guiding the user on how to use the information and what to do with it. be very precise and detailed."

// Parser converts document files into a structured extraction payload.
type Parser interface {
	Parse(ctx context.Context, filePaths []string, instruction string) (map[string]any, error)
}

// chatClient abstracts the OpenAI chat completion call, enabling test mocks.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// rasterizeFunc renders a PDF into per-page JPEG files inside a fresh temp
// directory and returns their paths.
type rasterizeFunc func(path string) ([]string, error)

// OpenAIParser implements Parser against the OpenAI chat completion API with
// vision inputs.
type OpenAIParser struct {
	client    chatClient
	model     string
	rasterize rasterizeFunc
}

// Opts holds parameters for creating an OpenAIParser.
type Opts struct {
	APIKey string
	Model  string // default: gpt-4o
	// For testing: inject a mock client / rasterizer.
	Client    chatClient
	Rasterize rasterizeFunc
}

// New creates an OpenAIParser.
func New(opts Opts) (*OpenAIParser, error) {
	if opts.Client == nil && opts.APIKey == "" {
		return nil, fmt.Errorf("extract: api key is required")
	}
	p := &OpenAIParser{
		client:    opts.Client,
		model:     opts.Model,
		rasterize: opts.Rasterize,
	}
	if p.client == nil {
		p.client = openai.NewClient(opts.APIKey)
	}
	if p.model == "" {
		p.model = openai.GPT4o
	}
	if p.rasterize == nil {
		p.rasterize = rasterizePDF
	}
	return p, nil
}

// Parse loads the given PDFs/images, sends them to the model in one request,
// and returns the combined parsed JSON. An optional instruction is prepended
// to the default extraction prompt. Every temporary page image produced while
// rasterizing PDFs is removed before Parse returns, on success and on failure.
func (p *OpenAIParser) Parse(ctx context.Context, filePaths []string, instruction string) (map[string]any, error) {
	var tempFiles []string
	defer func() {
		cleanupFiles(tempFiles)
	}()

	var parts []openai.ChatMessagePart
	for _, path := range filePaths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("extract: %s: %w", path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("extract: %s: is a directory", path)
		}

		if mimeForFile(path) == "application/pdf" {
			pages, err := p.rasterize(path)
			tempFiles = append(tempFiles, pages...)
			if err != nil {
				return nil, fmt.Errorf("extract: rasterize %s: %w", path, err)
			}
			for _, page := range pages {
				part, err := imagePart(page)
				if err != nil {
					return nil, err
				}
				parts = append(parts, part)
			}
		} else {
			part, err := imagePart(path)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}
	}

	prompt := defaultInstruction
	if instruction != "" {
		prompt = instruction + "\n\n" + defaultInstruction
	}

	content := make([]openai.ChatMessagePart, 0, len(parts)+1)
	content = append(content, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: prompt,
	})
	content = append(content, parts...)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: content},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extract: completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("extract: empty response from model")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("extract: parse model output: %w", err)
	}
	return out, nil
}

// imagePart reads an image file and encodes it as an inline data-URL part.
func imagePart(path string) (openai.ChatMessagePart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return openai.ChatMessagePart{}, fmt.Errorf("extract: read %s: %w", path, err)
	}
	url := fmt.Sprintf("data:%s;base64,%s", mimeForFile(path), base64.StdEncoding.EncodeToString(data))
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL:    url,
			Detail: openai.ImageURLDetailAuto,
		},
	}, nil
}

// mimeForFile guesses a content type from the file extension, defaulting to
// PNG for unknown image formats.
func mimeForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".gif":
		return "image/gif"
	default:
		return "image/png"
	}
}

// cleanupFiles removes temporary page images and their (now empty) temp
// directories. Best-effort: errors are logged, not returned.
func cleanupFiles(paths []string) {
	dirs := make(map[string]bool)
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("extract: cleanup %s: %v", path, err)
		}
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			log.Printf("extract: cleanup dir %s: %v", dir, err)
		}
	}
}
