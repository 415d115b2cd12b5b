// ABOUTME: OpenAI Assistants implementation of the inference provider
// ABOUTME: Wraps go-openai threads/runs/files and parses annotations into tagged variants

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/2389/helpdesk-bridge/internal/citation"
)

// Config holds the assistant service settings.
type Config struct {
	APIKey              string
	BaseURL             string
	AssistantID         string
	SummaryModel        string
	MaxCompletionTokens int
	RunTimeout          time.Duration
	PollInterval        time.Duration
}

// titleSystemPrompt instructs the summary model used for thread titles.
const titleSystemPrompt = "You are a summarizer that adequately summarizes a help inquiry in 8 words or less in order to create good thread titles."

// titleUserPrompt prefixes the inquiry text in the title request.
const titleUserPrompt = "Please create a thread title based on the following inquiry"

// OpenAI implements Provider over the OpenAI Assistants API.
type OpenAI struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// NewOpenAI creates the provider client.
func NewOpenAI(cfg Config, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger.With("component", "provider"),
	}
}

// CreateSession opens an assistant thread seeded with prior history.
func (p *OpenAI) CreateSession(ctx context.Context, seed []Message) (string, error) {
	msgs := make([]openai.ThreadMessage, len(seed))
	for i, m := range seed {
		msgs[i] = openai.ThreadMessage{
			Role:    openai.ThreadMessageRole(m.Role),
			Content: m.Content,
		}
	}
	thread, err := p.client.CreateThread(ctx, openai.ThreadRequest{Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return thread.ID, nil
}

// AppendUserMessage adds the current user message with its uploaded images.
func (p *OpenAI) AppendUserMessage(ctx context.Context, sessionID, text string, images []ImageRef) error {
	req := openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: text,
	}
	for _, img := range images {
		req.FileIds = append(req.FileIds, img.FileID)
	}
	if _, err := p.client.CreateMessage(ctx, sessionID, req); err != nil {
		return fmt.Errorf("appending user message: %w", err)
	}
	return nil
}

// Run executes the assistant against the session and polls until it reaches a
// terminal status or the run timeout budget expires.
func (p *OpenAI) Run(ctx context.Context, sessionID string) (*RunResult, error) {
	run, err := p.client.CreateRun(ctx, sessionID, openai.RunRequest{
		AssistantID:         p.cfg.AssistantID,
		MaxCompletionTokens: p.cfg.MaxCompletionTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	deadline := time.Now().Add(p.cfg.RunTimeout)
	for {
		switch run.Status {
		case openai.RunStatusCompleted:
			return &RunResult{
				Model:            run.Model,
				PromptTokens:     run.Usage.PromptTokens,
				CompletionTokens: run.Usage.CompletionTokens,
			}, nil
		case openai.RunStatusQueued, openai.RunStatusInProgress:
			// keep polling
		default:
			return nil, p.runFailure(run)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("run %s exceeded timeout budget %s", run.ID, p.cfg.RunTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}

		run, err = p.client.RetrieveRun(ctx, sessionID, run.ID)
		if err != nil {
			return nil, fmt.Errorf("polling run: %w", err)
		}
	}
}

// runFailure converts a non-completed run into an error, extracting quota
// detail when the provider reported a rate limit.
func (p *OpenAI) runFailure(run openai.Run) error {
	if run.LastError != nil {
		p.logger.Error("run failed",
			"run_id", run.ID,
			"status", run.Status,
			"code", run.LastError.Code,
			"message", run.LastError.Message)
		if run.LastError.Code == "rate_limit_exceeded" {
			if rle := parseRateLimitDetail(run.LastError.Message); rle != nil {
				return rle
			}
		}
		return fmt.Errorf("run %s failed with status %s: %s", run.ID, run.Status, run.LastError.Message)
	}
	return fmt.Errorf("run %s did not complete: status %s", run.ID, run.Status)
}

// rateDetailPattern pulls the four numeric values out of the provider's
// rate-limit failure message: limit, used, requested, seconds to reset.
var rateDetailPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

func parseRateLimitDetail(message string) *RateLimitError {
	nums := rateDetailPattern.FindAllString(message, -1)
	if len(nums) < 4 {
		return nil
	}
	limit, err1 := strconv.Atoi(nums[0])
	used, err2 := strconv.Atoi(nums[1])
	requested, err3 := strconv.Atoi(nums[2])
	reset, err4 := strconv.ParseFloat(nums[3], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil
	}
	return &RateLimitError{Limit: limit, Used: used, Requested: requested, ResetSeconds: reset}
}

// LatestResponse returns the newest assistant message. The provider lists
// messages newest first.
func (p *OpenAI) LatestResponse(ctx context.Context, sessionID string) (*Response, error) {
	list, err := p.client.ListMessage(ctx, sessionID, nil, nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	if len(list.Messages) == 0 {
		return nil, errors.New("session has no messages")
	}
	for _, content := range list.Messages[0].Content {
		if content.Text == nil {
			continue
		}
		anns, err := parseAnnotations(content.Text.Annotations)
		if err != nil {
			return nil, err
		}
		return &Response{Text: content.Text.Value, Annotations: anns}, nil
	}
	return nil, errors.New("newest message carries no text content")
}

// rawAnnotation mirrors the provider's annotation JSON for both variants.
type rawAnnotation struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	FileCitation *struct {
		FileID string `json:"file_id"`
	} `json:"file_citation"`
	FilePath *struct {
		FileID string `json:"file_id"`
	} `json:"file_path"`
}

// parseAnnotations resolves the loosely typed annotation payload into tagged
// variants once, at the response boundary.
func parseAnnotations(raw []any) ([]citation.Annotation, error) {
	anns := make([]citation.Annotation, 0, len(raw))
	for _, item := range raw {
		encoded, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encoding annotation: %w", err)
		}
		var ra rawAnnotation
		if err := json.Unmarshal(encoded, &ra); err != nil {
			return nil, fmt.Errorf("decoding annotation: %w", err)
		}
		switch {
		case ra.FileCitation != nil:
			anns = append(anns, citation.Annotation{
				Text:   ra.Text,
				Kind:   citation.KindFileCitation,
				FileID: ra.FileCitation.FileID,
			})
		case ra.FilePath != nil:
			anns = append(anns, citation.Annotation{
				Text:   ra.Text,
				Kind:   citation.KindFilePath,
				FileID: ra.FilePath.FileID,
			})
		}
	}
	return anns, nil
}

// UploadImage stores image bytes for use in a multi-modal request.
func (p *OpenAI) UploadImage(ctx context.Context, filename string, data []byte) (ImageRef, error) {
	file, err := p.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    filename,
		Bytes:   data,
		Purpose: openai.PurposeType("vision"),
	})
	if err != nil {
		return ImageRef{}, fmt.Errorf("uploading image %s: %w", filename, err)
	}
	return ImageRef{FileID: file.ID}, nil
}

// FileName resolves a file ID to its stored filename.
func (p *OpenAI) FileName(ctx context.Context, fileID string) (string, error) {
	file, err := p.client.GetFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("retrieving file %s: %w", fileID, err)
	}
	return file.FileName, nil
}

// Summarize asks the chat model for an 8-word-or-less topic title.
func (p *OpenAI) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.cfg.SummaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titleSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("%s: %s", titleUserPrompt, text)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarizing inquiry: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty summary response")
	}
	return resp.Choices[0].Message.Content, nil
}
