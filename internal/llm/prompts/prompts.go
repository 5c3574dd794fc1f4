package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/focusroom/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	learnerAnswerRegex      = regexp.MustCompile(`(?i)</?\s*learner-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
	lessonRegex             = regexp.MustCompile(`(?i)</?\s*lesson\b[^>]*>`)
)

// PromptVariant sets how strictly free-text answers are evaluated.
type PromptVariant string

const (
	PromptStrict   PromptVariant = "strict"
	PromptStandard PromptVariant = "standard"
	PromptLenient  PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

const maxAnswerRunes = 10000

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[string]*template.Template
)

// shapes shows the generator the data block expected for each kind.
var shapes = map[model.Kind]string{
	model.KindQuiz:        `{"questions": [{"question": "", "options": ["", "", "", ""], "correct_index": 0, "explanation": ""}]}`,
	model.KindTranslation: `{"sentences": [{"source": "", "target_lang": "", "hint": ""}]}`,
	model.KindWriting:     `{"prompt": "", "example": "", "word_count_target": 50}`,
	model.KindRoleplay:    `{"scenario": "", "roles": {"user": "", "ai": ""}, "starter_prompt": "", "sample_exchanges": [{"user": "", "ai": ""}]}`,
	model.KindCards:       `{"cards": [{"front": "", "back": ""}]}`,
	model.KindChecklist:   `{"steps": ["", ""], "proof_prompt": ""}`,
	model.KindLesson:      `{"summary": "", "key_points": [""], "vocabulary": [{"word": "", "translation": ""}], "body_md": ""}`,
	model.KindBriefing:    `{"situation": "", "outcome": ""}`,
	model.KindFeedback:    `{"message": "", "improved_version": "", "corrections": [""]}`,
}

// DayData holds the fields shared by generation prompts.
type DayData struct {
	DayTitle       string
	Domain         string
	TargetLanguage string
	Track          string
	Level          string
	Minutes        int
	Lang           string
}

// ItemData holds template data for exercise generation.
type ItemData struct {
	DayData
	Kind   model.Kind
	Label  string
	Lesson string
	Shape  string
}

// TranslationData holds template data for translation evaluation.
type TranslationData struct {
	Variant     PromptVariant
	Lang        string
	Source      string
	TargetLang  string
	Answer      string
	Attempt     int
	MaxAttempts int
	Reveal      bool
}

// WritingData holds template data for writing evaluation.
type WritingData struct {
	Variant PromptVariant
	Lang    string
	Prompt  string
	Answer  string
}

// Load parses the embedded prompt templates once.
func Load() error {
	loadOnce.Do(func() {
		templates = make(map[string]*template.Template)
		entries, err := templateFS.ReadDir("templates")
		if err != nil {
			loadErr = fmt.Errorf("read prompt templates: %w", err)
			return
		}
		for _, e := range entries {
			name := strings.TrimSuffix(e.Name(), ".tmpl")
			content, err := templateFS.ReadFile("templates/" + e.Name())
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + e.Name() + ": " + err.Error())
				return
			}
			tmpl, err := template.New(name).Option("missingkey=zero").Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + e.Name() + ": " + err.Error())
				return
			}
			templates[name] = tmpl
		}
	})
	return loadErr
}

func render(name string, data any) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	tmpl, ok := templates[name]
	if !ok {
		return "", errors.New("unknown prompt template: " + name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildItemPrompt builds the prompt that generates one exercise of kind.
func BuildItemPrompt(d ItemData) (string, error) {
	shape, ok := shapes[d.Kind]
	if !ok {
		return "", errors.New("unknown exercise kind: " + string(d.Kind))
	}
	d.Shape = shape
	d.Lesson = sanitizeLesson(d.Lesson)
	return render("generate_item", d)
}

// BuildLessonPrompt builds the prompt that generates the day's lesson.
func BuildLessonPrompt(d DayData) (string, error) {
	return render("generate_lesson", d)
}

// BuildTranslationPrompt builds the translation evaluation prompt.
func BuildTranslationPrompt(d TranslationData) (string, error) {
	if !validVariants[d.Variant] {
		d.Variant = PromptStandard
	}
	d.Answer = sanitizeAnswer(d.Answer)
	d.Reveal = d.MaxAttempts > 0 && d.Attempt >= d.MaxAttempts
	return render("eval_translation", d)
}

// BuildWritingPrompt builds the writing evaluation prompt.
func BuildWritingPrompt(d WritingData) (string, error) {
	if !validVariants[d.Variant] {
		d.Variant = PromptStandard
	}
	d.Answer = sanitizeAnswer(d.Answer)
	return render("eval_writing", d)
}

func sanitizeAnswer(answer string) string {
	answer = learnerAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}

func sanitizeLesson(lesson string) string {
	return strings.TrimSpace(lessonRegex.ReplaceAllString(lesson, ""))
}
