// Package content turns loosely shaped generator payloads into strict,
// renderable task content.
//
// Normalization is a two-stage pipeline: DetectKind picks the variant, then a
// per-kind repair function (total over any input) extracts that variant's
// payload. When a required list ends up empty the kind's deterministic
// fallback entry is substituted, so an exercise is never left empty.
package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelanni/focusroom/internal/model"
)

// SchemaVersion is the only schema version accepted without repair.
const SchemaVersion = "1.0"

// Item is a normalized content item. It is immutable after normalization.
type Item struct {
	SchemaVersion string           `json:"schema_version" validate:"eq=1.0"`
	Kind          model.Kind       `json:"kind" validate:"kind"`
	Title         string           `json:"title" validate:"nonblank"`
	Instructions  string           `json:"instructions_md" validate:"nonblank"`
	Content       Block            `json:"content"`
	Validation    *ValidationRules `json:"validation" validate:"required"`
	Scoring       *ScoringRules    `json:"scoring" validate:"required"`
}

// Block carries the kind tag together with the kind-specific payload.
type Block struct {
	Kind model.Kind `json:"kind" validate:"kind"`
	Data Payload    `json:"data" validate:"required"`
}

// ValidationRules are the interaction requirements checked before an item
// may be completed.
type ValidationRules struct {
	RequireInteraction bool `json:"require_interaction" validate:"eq=true"`
	MinChars           int  `json:"min_chars" validate:"gte=0"`
	MinItems           int  `json:"min_items" validate:"gte=0"`
	MinMessages        int  `json:"min_messages" validate:"gte=0"`
	RequireProof       bool `json:"require_proof"`
	ProofMinChars      int  `json:"proof_min_chars,omitempty" validate:"gte=0"`
}

// ScoringRules describe how an item is scored.
type ScoringRules struct {
	MaxPoints     int  `json:"max_points" validate:"gte=0"`
	PartialCredit bool `json:"partial_credit"`
	AutoGrade     bool `json:"auto_grade"`
}

// Renderable reports whether the item has anything to show.
func (it *Item) Renderable() bool {
	return it != nil && it.Content.Data != nil && it.Content.Data.Renderable()
}

// Map returns the item in its wire form as a generic map.
func (it *Item) Map() map[string]any {
	data, err := json.Marshal(it)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// UnmarshalJSON decodes the payload according to the block's kind tag.
func (b *Block) UnmarshalJSON(data []byte) error {
	var wire struct {
		Kind model.Kind      `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	b.Kind = wire.Kind
	b.Data = nil
	if len(wire.Data) == 0 || string(wire.Data) == "null" {
		return nil
	}
	p, ok := newPayload(wire.Kind)
	if !ok {
		return fmt.Errorf("content: unknown kind %q", wire.Kind)
	}
	if err := json.Unmarshal(wire.Data, p); err != nil {
		return fmt.Errorf("content: decode %s data: %w", wire.Kind, err)
	}
	b.Data = p
	return nil
}

// Payload is the kind-specific part of an item. Exactly one implementation
// exists per kind.
type Payload interface {
	Kind() model.Kind
	Renderable() bool
}

func newPayload(k model.Kind) (Payload, bool) {
	switch k {
	case model.KindQuiz:
		return &QuizPayload{}, true
	case model.KindTranslation:
		return &TranslationPayload{}, true
	case model.KindWriting:
		return &WritingPayload{}, true
	case model.KindRoleplay:
		return &RoleplayPayload{}, true
	case model.KindCards:
		return &CardsPayload{}, true
	case model.KindChecklist:
		return &ChecklistPayload{}, true
	case model.KindLesson:
		return &LessonPayload{}, true
	case model.KindBriefing:
		return &BriefingPayload{}, true
	case model.KindFeedback:
		return &FeedbackPayload{}, true
	}
	return nil, false
}

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

type QuizPayload struct {
	Questions []QuizQuestion `json:"questions"`
}

func (*QuizPayload) Kind() model.Kind { return model.KindQuiz }
func (p *QuizPayload) Renderable() bool {
	for _, q := range p.Questions {
		if !blank(q.Question) && len(q.Options) >= 2 {
			return true
		}
	}
	return false
}

// Sentence is one sentence to translate.
type Sentence struct {
	Source     string `json:"source"`
	TargetLang string `json:"target_lang,omitempty"`
	Hint       string `json:"hint,omitempty"`
}

type TranslationPayload struct {
	Sentences []Sentence `json:"sentences"`
}

func (*TranslationPayload) Kind() model.Kind { return model.KindTranslation }
func (p *TranslationPayload) Renderable() bool {
	for _, s := range p.Sentences {
		if !blank(s.Source) {
			return true
		}
	}
	return false
}

type WritingPayload struct {
	Prompt          string `json:"prompt"`
	Example         string `json:"example,omitempty"`
	WordCountTarget int    `json:"word_count_target,omitempty"`
}

func (*WritingPayload) Kind() model.Kind   { return model.KindWriting }
func (p *WritingPayload) Renderable() bool { return !blank(p.Prompt) }

// Roles names the two sides of a roleplay.
type Roles struct {
	User string `json:"user"`
	AI   string `json:"ai"`
}

// Exchange is a sample user/partner turn pair.
type Exchange struct {
	User string `json:"user"`
	AI   string `json:"ai"`
}

type RoleplayPayload struct {
	Scenario        string     `json:"scenario"`
	Roles           Roles      `json:"roles"`
	StarterPrompt   string     `json:"starter_prompt,omitempty"`
	SampleExchanges []Exchange `json:"sample_exchanges,omitempty"`
}

func (*RoleplayPayload) Kind() model.Kind   { return model.KindRoleplay }
func (p *RoleplayPayload) Renderable() bool { return !blank(p.Scenario) }

// Card is a single flashcard.
type Card struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type CardsPayload struct {
	Cards []Card `json:"cards"`
}

func (*CardsPayload) Kind() model.Kind { return model.KindCards }
func (p *CardsPayload) Renderable() bool {
	for _, c := range p.Cards {
		if !blank(c.Front) && !blank(c.Back) {
			return true
		}
	}
	return false
}

type ChecklistPayload struct {
	Steps       []string `json:"steps"`
	ProofPrompt string   `json:"proof_prompt,omitempty"`
}

func (*ChecklistPayload) Kind() model.Kind { return model.KindChecklist }
func (p *ChecklistPayload) Renderable() bool {
	for _, s := range p.Steps {
		if !blank(s) {
			return true
		}
	}
	return false
}

// VocabEntry is one vocabulary row of a lesson.
type VocabEntry struct {
	Word          string `json:"word"`
	Translation   string `json:"translation"`
	Pronunciation string `json:"pronunciation,omitempty"`
	Example       string `json:"example_sentence,omitempty"`
}

type LessonPayload struct {
	Summary    string       `json:"summary"`
	KeyPoints  []string     `json:"key_points,omitempty"`
	Vocabulary []VocabEntry `json:"vocabulary_table,omitempty"`
	BodyMD     string       `json:"body_md,omitempty"`
}

func (*LessonPayload) Kind() model.Kind { return model.KindLesson }
func (p *LessonPayload) Renderable() bool {
	return !blank(p.Summary) || !blank(p.BodyMD) || len(p.KeyPoints) > 0
}

type BriefingPayload struct {
	Situation string `json:"situation"`
	Outcome   string `json:"outcome,omitempty"`
}

func (*BriefingPayload) Kind() model.Kind   { return model.KindBriefing }
func (p *BriefingPayload) Renderable() bool { return !blank(p.Situation) }

type FeedbackPayload struct {
	Message         string   `json:"message"`
	ImprovedVersion string   `json:"improved_version,omitempty"`
	Corrections     []string `json:"corrections,omitempty"`
}

func (*FeedbackPayload) Kind() model.Kind { return model.KindFeedback }
func (p *FeedbackPayload) Renderable() bool {
	return !blank(p.Message) || !blank(p.ImprovedVersion)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
