package content

import "github.com/pavelanni/focusroom/internal/model"

// Default proof length for checklists that ask for proof of work.
const DefaultProofMinChars = 20

type template struct {
	title        string
	instructions string
	payload      func() Payload
	validation   ValidationRules
	scoring      ScoringRules
}

// templates are the hardcoded per-kind defaults used both for repair and for
// whole-item fallbacks. Every payload here must be renderable.
var templates = map[model.Kind]template{
	model.KindQuiz: {
		title:        "Quick check",
		instructions: "Choose the correct answer.",
		payload: func() Payload {
			return &QuizPayload{Questions: []QuizQuestion{{
				Question:     "Which sentence is a polite greeting?",
				Options:      []string{"Good morning!", "Go away.", "Whatever."},
				CorrectIndex: 0,
			}}}
		},
		validation: ValidationRules{RequireInteraction: true, MinItems: 1},
		scoring:    ScoringRules{MaxPoints: 100, AutoGrade: true},
	},
	model.KindTranslation: {
		title:        "Translate",
		instructions: "Translate the sentence.",
		payload: func() Payload {
			return &TranslationPayload{Sentences: []Sentence{{Source: "Good morning, how are you?"}}}
		},
		validation: ValidationRules{RequireInteraction: true, MinChars: 2},
		scoring:    ScoringRules{MaxPoints: 100, PartialCredit: true},
	},
	model.KindWriting: {
		title:        "Short writing",
		instructions: "Write a few sentences in your own words.",
		payload: func() Payload {
			return &WritingPayload{Prompt: "Describe what you learned today and how you will use it."}
		},
		validation: ValidationRules{RequireInteraction: true, MinChars: 40},
		scoring:    ScoringRules{MaxPoints: 100, PartialCredit: true},
	},
	model.KindRoleplay: {
		title:        "Roleplay",
		instructions: "Reply to your partner as if the situation were real.",
		payload: func() Payload {
			return &RoleplayPayload{
				Scenario:      "You meet a new colleague at the coffee machine.",
				Roles:         Roles{User: "Learner", AI: "Colleague"},
				StarterPrompt: "Hi! I don't think we've met yet.",
			}
		},
		validation: ValidationRules{RequireInteraction: true, MinChars: 15, MinMessages: 1},
		scoring:    ScoringRules{MaxPoints: 100, PartialCredit: true},
	},
	model.KindCards: {
		title:        "Flashcards",
		instructions: "Go through the cards and recall the back side.",
		payload: func() Payload {
			return &CardsPayload{Cards: []Card{{Front: "hello", Back: "szia"}}}
		},
		validation: ValidationRules{RequireInteraction: true, MinItems: 1},
		scoring:    ScoringRules{MaxPoints: 100},
	},
	model.KindChecklist: {
		title:        "Practice",
		instructions: "Complete the step and describe what you did.",
		payload: func() Payload {
			return &ChecklistPayload{
				Steps:       []string{"Do one concrete practice step for today's topic."},
				ProofPrompt: "What did you do? Describe it in one or two sentences.",
			}
		},
		validation: ValidationRules{
			RequireInteraction: true, MinItems: 1,
			RequireProof: true, ProofMinChars: DefaultProofMinChars,
		},
		scoring: ScoringRules{MaxPoints: 100},
	},
	model.KindLesson: {
		title:        "Today's lesson",
		instructions: "Read through the lesson.",
		payload: func() Payload {
			return &LessonPayload{Summary: "Today's lesson could not be prepared in full. Review yesterday's material."}
		},
		validation: ValidationRules{RequireInteraction: true},
		scoring:    ScoringRules{MaxPoints: 0},
	},
	model.KindBriefing: {
		title:        "Briefing",
		instructions: "Read the situation before you start.",
		payload: func() Payload {
			return &BriefingPayload{Situation: "A short practice session is waiting for you."}
		},
		validation: ValidationRules{RequireInteraction: true},
		scoring:    ScoringRules{MaxPoints: 0},
	},
	model.KindFeedback: {
		title:        "Feedback",
		instructions: "Read the feedback on your work.",
		payload: func() Payload {
			return &FeedbackPayload{Message: "Thanks for your work. Keep practising!"}
		},
		validation: ValidationRules{RequireInteraction: true},
		scoring:    ScoringRules{MaxPoints: 0},
	},
}

func templateFor(k model.Kind) template {
	if t, ok := templates[k]; ok {
		return t
	}
	return templates[model.KindWriting]
}

// Fallback returns the complete deterministic item for kind. Unknown kinds
// get the writing fallback.
func Fallback(kind model.Kind) *Item {
	if !kind.Valid() {
		kind = model.KindWriting
	}
	t := templateFor(kind)
	v, s := t.validation, t.scoring
	return &Item{
		SchemaVersion: SchemaVersion,
		Kind:          kind,
		Title:         t.title,
		Instructions:  t.instructions,
		Content:       Block{Kind: kind, Data: t.payload()},
		Validation:    &v,
		Scoring:       &s,
	}
}
