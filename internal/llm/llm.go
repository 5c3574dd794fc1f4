package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cast"
	"golang.org/x/time/rate"

	"github.com/pavelanni/focusroom/internal/content"
	"github.com/pavelanni/focusroom/internal/i18n"
	"github.com/pavelanni/focusroom/internal/llm/prompts"
	"github.com/pavelanni/focusroom/internal/model"
	"github.com/pavelanni/focusroom/internal/script"
	"github.com/pavelanni/focusroom/internal/task"
)

const (
	defaultMaxAttempts = 3
	writingScore       = 70
	otherKindScore     = 80
)

// Config configures the client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	SpeechModel string
	Voice       string
	Lang        string // language of feedback and explanations
	Variant     prompts.PromptVariant
	RPS         float64 // requests per second; 0 disables limiting
	Burst       int
	MaxTTSChars int
}

// Client wraps an OpenAI-compatible API client. It generates day content,
// evaluates answers and synthesizes narration.
type Client struct {
	api         *openai.Client
	model       string
	speechModel openai.SpeechModel
	voice       openai.SpeechVoice
	lang        string
	variant     prompts.PromptVariant
	limiter     *rate.Limiter
	maxTTSChars int
}

// New creates a new LLM client.
func New(cfg Config) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		api:         openai.NewClientWithConfig(config),
		model:       cfg.Model,
		speechModel: openai.SpeechModel(cfg.SpeechModel),
		voice:       openai.SpeechVoice(cfg.Voice),
		lang:        cfg.Lang,
		variant:     cfg.Variant,
		limiter:     rate.NewLimiter(limit, burst),
		maxTTSChars: cfg.MaxTTSChars,
	}
	if c.speechModel == "" {
		c.speechModel = openai.TTSModel1
	}
	if c.voice == "" {
		c.voice = openai.VoiceAlloy
	}
	if c.lang == "" {
		c.lang = "hu"
	}
	if c.maxTTSChars <= 0 {
		c.maxTTSChars = script.DefaultMaxChars
	}
	return c
}

// Ping checks that the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM ping: %w", err)
	}
	return nil
}

// GenerateItem generates the raw content of one exercise. The result is
// loosely typed; the content normalizer makes it renderable.
func (c *Client) GenerateItem(ctx context.Context, d prompts.ItemData) (map[string]any, error) {
	d.Lang = c.lang
	prompt, err := prompts.BuildItemPrompt(d)
	if err != nil {
		return nil, err
	}
	raw, err := c.chatJSON(ctx, prompt, 0.7)
	if err != nil {
		return nil, err
	}
	var item map[string]any
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("parse generated item: %w (raw: %s)", err, raw)
	}
	if _, ok := item["kind"]; !ok {
		item["kind"] = string(d.Kind)
	}
	return item, nil
}

// GenerateLesson generates the lesson of the day.
func (c *Client) GenerateLesson(ctx context.Context, d prompts.DayData) (map[string]any, error) {
	d.Lang = c.lang
	prompt, err := prompts.BuildLessonPrompt(d)
	if err != nil {
		return nil, err
	}
	raw, err := c.chatJSON(ctx, prompt, 0.7)
	if err != nil {
		return nil, err
	}
	var lesson map[string]any
	if err := json.Unmarshal([]byte(raw), &lesson); err != nil {
		return nil, fmt.Errorf("parse generated lesson: %w (raw: %s)", err, raw)
	}
	return lesson, nil
}

// Evaluate implements task.Evaluator. Quizzes are graded locally; translation
// and writing go to the model; other kinds are accepted. A model failure is
// returned as an error so the session can accept with its neutral score.
func (c *Client) Evaluate(ctx context.Context, req task.EvalRequest) (task.EvalResult, error) {
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = defaultMaxAttempts
	}
	switch req.Kind {
	case model.KindQuiz:
		return gradeQuiz(ctx, req), nil
	case model.KindTranslation:
		return c.evaluateTranslation(ctx, req)
	case model.KindWriting:
		return c.evaluateWriting(ctx, req)
	default:
		score := otherKindScore
		return task.EvalResult{Correct: true, Score: &score, Feedback: i18n.T(ctx, "eval.accepted")}, nil
	}
}

// gradeQuiz checks every question against the chosen options. Hints get
// stronger with each attempt and the last attempt reveals the answer.
func gradeQuiz(ctx context.Context, req task.EvalRequest) task.EvalResult {
	qs := req.Context.Questions
	wrong := -1
	for i, q := range qs {
		if i >= len(req.Answer.Choices) || req.Answer.Choices[i] != q.CorrectIndex {
			wrong = i
			break
		}
	}
	if wrong < 0 {
		score := max(100-(req.Attempt-1)*20, 60)
		return task.EvalResult{Correct: true, Score: &score, Feedback: i18n.T(ctx, "quiz.correct")}
	}

	q := qs[wrong]
	if req.Attempt < req.MaxAttempts {
		return task.EvalResult{CanRetry: true, Feedback: quizHint(ctx, q, choiceAt(req.Answer.Choices, wrong), req.Attempt)}
	}
	answer := fmt.Sprint(q.CorrectIndex)
	if q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
		answer = q.Options[q.CorrectIndex]
	}
	return task.EvalResult{
		Feedback:      i18n.Td(ctx, "quiz.reveal", map[string]any{"Answer": answer}),
		CorrectAnswer: answer,
	}
}

func quizHint(ctx context.Context, q content.QuizQuestion, chosen, attempt int) string {
	if attempt <= 1 {
		return i18n.T(ctx, "quiz.hint_first")
	}
	if len(q.Options) > 2 {
		for i, opt := range q.Options {
			if i != q.CorrectIndex && i != chosen {
				return i18n.Td(ctx, "quiz.hint_eliminate", map[string]any{"Option": opt})
			}
		}
	}
	return i18n.T(ctx, "quiz.hint_last")
}

func choiceAt(choices []int, i int) int {
	if i < len(choices) {
		return choices[i]
	}
	return -1
}

func (c *Client) evaluateTranslation(ctx context.Context, req task.EvalRequest) (task.EvalResult, error) {
	source := req.Context.Source
	if len(req.Context.Sources) > 1 {
		source = strings.Join(req.Context.Sources, "\n")
	}
	answer := req.Answer.Text
	if answer == "" {
		answer = strings.Join(req.Answer.Items, "\n")
	}
	prompt, err := prompts.BuildTranslationPrompt(prompts.TranslationData{
		Variant:     c.variant,
		Lang:        c.lang,
		Source:      source,
		TargetLang:  req.Context.TargetLang,
		Answer:      answer,
		Attempt:     req.Attempt,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		return task.EvalResult{}, err
	}
	data, err := c.chatObject(ctx, prompt, 0.1)
	if err != nil {
		return task.EvalResult{}, err
	}

	correct := cast.ToBool(data["correct"])
	res := task.EvalResult{
		Correct:  correct,
		CanRetry: !correct && req.Attempt < req.MaxAttempts,
		Feedback: firstNonBlank(cast.ToString(data["feedback"]), cast.ToString(data["hint"])),
	}
	if correct {
		res.Score = scoreOf(data)
	}
	if !correct && !res.CanRetry {
		res.CorrectAnswer = strings.TrimSpace(cast.ToString(data["correct_answer"]))
	}
	return res, nil
}

func (c *Client) evaluateWriting(ctx context.Context, req task.EvalRequest) (task.EvalResult, error) {
	prompt, err := prompts.BuildWritingPrompt(prompts.WritingData{
		Variant: c.variant,
		Lang:    c.lang,
		Prompt:  req.Context.Prompt,
		Answer:  req.Answer.Text,
	})
	if err != nil {
		return task.EvalResult{}, err
	}
	data, err := c.chatObject(ctx, prompt, 0.2)
	if err != nil {
		return task.EvalResult{}, err
	}
	score := scoreOf(data)
	if score == nil {
		s := writingScore
		score = &s
	}
	feedback := strings.TrimSpace(cast.ToString(data["feedback"]))
	if improved := strings.TrimSpace(cast.ToString(data["improved_version"])); improved != "" {
		feedback = strings.TrimSpace(feedback + "\n\n" + improved)
	}
	return task.EvalResult{Correct: true, Score: score, Feedback: feedback}, nil
}

// Synthesize implements script.Synthesizer.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = script.Truncate(strings.TrimSpace(text), c.maxTTSChars)
	if text == "" {
		return nil, fmt.Errorf("synthesize: empty text")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          c.speechModel,
		Input:          text,
		Voice:          c.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech API call: %w", err)
	}
	defer resp.Close()
	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	return audio, nil
}

func (c *Client) chatObject(ctx context.Context, prompt string, temperature float32) (map[string]any, error) {
	raw, err := c.chatJSON(ctx, prompt, temperature)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	return data, nil
}

// chatJSON sends prompt as the system message and returns the JSON object
// the model answered with.
func (c *Client) chatJSON(ctx context.Context, prompt string, temperature float32) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return extractObject(raw), nil
}

// extractObject strips code fences and surrounding prose from a JSON object.
func extractObject(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}

func scoreOf(data map[string]any) *int {
	v, ok := data["score"]
	if !ok || v == nil {
		return nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return nil
	}
	return &n
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
