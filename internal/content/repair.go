package content

import (
	"strings"

	"github.com/pavelanni/focusroom/internal/model"
)

// MinStepChars is the shortest checklist step kept by repair.
const MinStepChars = 8

// repairers extract a kind's payload from any input. They never fail: when
// nothing usable is found they return the kind's fallback payload.
var repairers = map[model.Kind]func(source) Payload{
	model.KindQuiz:        repairQuiz,
	model.KindTranslation: repairTranslation,
	model.KindWriting:     repairWriting,
	model.KindRoleplay:    repairRoleplay,
	model.KindCards:       repairCards,
	model.KindChecklist:   repairChecklist,
	model.KindLesson:      repairLesson,
	model.KindBriefing:    repairBriefing,
	model.KindFeedback:    repairFeedback,
}

// Repair builds a strictly valid item from arbitrary input.
func Repair(raw map[string]any) *Item {
	if raw == nil {
		raw = map[string]any{}
	}
	kind := DetectKind(raw)
	src := sourceOf(raw)
	t := templateFor(kind)

	payload := repairers[kind](src)
	if payload == nil || !payload.Renderable() {
		payload = t.payload()
	}

	title := firstNonBlank(
		pickString(raw, "title", "label", "name"),
		pickString(src.body, "title"),
		t.title,
	)
	instructions := firstNonBlank(
		pickString(raw, "instructions_md", "instructions"),
		pickString(src.body, "instructions_md", "instructions"),
		t.instructions,
	)
	v := repairValidation(kind, raw, payload, t.validation)
	s := repairScoring(raw, t.scoring)

	return &Item{
		SchemaVersion: SchemaVersion,
		Kind:          kind,
		Title:         title,
		Instructions:  instructions,
		Content:       Block{Kind: kind, Data: payload},
		Validation:    &v,
		Scoring:       &s,
	}
}

func repairValidation(kind model.Kind, raw map[string]any, p Payload, def ValidationRules) ValidationRules {
	v := def
	if m := pickMap(raw, "validation"); m != nil {
		if n, ok := pickInt(m, "min_chars", "minChars"); ok && n >= 0 {
			v.MinChars = n
		}
		if n, ok := pickInt(m, "min_items", "minItems"); ok && n >= 0 {
			v.MinItems = n
		}
		if n, ok := pickInt(m, "min_messages", "minMessages"); ok && n >= 0 {
			v.MinMessages = n
		}
		if b, ok := pickBool(m, "require_proof", "requireProof"); ok {
			v.RequireProof = b
		}
		if n, ok := pickInt(m, "proof_min_chars", "proofMinChars"); ok && n >= 0 {
			v.ProofMinChars = n
		}
	}
	v.RequireInteraction = true

	if kind.ReadOnly() {
		return ValidationRules{RequireInteraction: true}
	}
	// A requirement the learner cannot meet would leave the item stuck.
	if n := capacity(p); n > 0 {
		v.MinItems = min(v.MinItems, n)
	} else {
		v.MinItems = 0
	}
	if kind != model.KindRoleplay {
		v.MinMessages = 0
	}
	if kind == model.KindChecklist {
		if v.RequireProof && v.ProofMinChars == 0 {
			v.ProofMinChars = DefaultProofMinChars
		}
	} else {
		v.RequireProof = false
		v.ProofMinChars = 0
	}
	return v
}

func repairScoring(raw map[string]any, def ScoringRules) ScoringRules {
	s := def
	m := pickMap(raw, "scoring")
	if m == nil {
		return s
	}
	if n, ok := pickInt(m, "max_points", "maxPoints"); ok && n >= 0 {
		s.MaxPoints = n
	}
	if b, ok := pickBool(m, "partial_credit", "partialCredit"); ok {
		s.PartialCredit = b
	}
	if b, ok := pickBool(m, "auto_grade", "autoGrade"); ok {
		s.AutoGrade = b
	}
	return s
}

// capacity is the number of countable units in a list-shaped payload.
func capacity(p Payload) int {
	switch d := p.(type) {
	case *QuizPayload:
		return len(d.Questions)
	case *TranslationPayload:
		return len(d.Sentences)
	case *CardsPayload:
		return len(d.Cards)
	case *ChecklistPayload:
		return len(d.Steps)
	}
	return 0
}

func repairQuiz(src source) Payload {
	list := src.list("questions", "quiz", "items")
	if list == nil && pickString(src.body, "question") != "" {
		list = []any{src.body}
	}
	var qs []QuizQuestion
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		text := pickString(m, "question", "q", "prompt", "text")
		opts := textList(pickList(m, "options", "choices", "answers"), "text", "label", "option")
		if text == "" || len(opts) < 2 {
			continue
		}
		idx, ok := pickInt(m, "correct_index", "correctIndex", "answer_index", "answerIndex", "correct")
		if !ok {
			idx = answerIndex(opts, pickString(m, "answer", "correct_answer"))
		}
		if idx < 0 || idx >= len(opts) {
			idx = 0
		}
		qs = append(qs, QuizQuestion{
			Question:     text,
			Options:      opts,
			CorrectIndex: idx,
			Explanation:  pickString(m, "explanation", "why"),
		})
	}
	if len(qs) == 0 {
		return templateFor(model.KindQuiz).payload()
	}
	return &QuizPayload{Questions: qs}
}

// answerIndex resolves an answer given as option text or as a letter.
func answerIndex(opts []string, ans string) int {
	if ans == "" {
		return -1
	}
	want := Fold(ans)
	for i, o := range opts {
		if Fold(o) == want {
			return i
		}
	}
	if len(want) == 1 && want[0] >= 'a' && want[0] <= 'z' {
		return int(want[0] - 'a')
	}
	return -1
}

func repairTranslation(src source) Payload {
	lang := src.str("target_lang", "target_language", "targetLang")
	list := src.list("sentences", "items", "translations")
	if list == nil {
		if s := pickString(src.body, "source", "sentence"); s != "" {
			list = []any{s}
		} else if src.text != "" {
			list = []any{src.text}
		}
	}
	var out []Sentence
	for _, e := range list {
		s := Sentence{TargetLang: lang}
		switch v := e.(type) {
		case map[string]any:
			s.Source = pickString(v, "source", "text", "sentence", "original", "prompt")
			s.Hint = pickString(v, "hint")
			if l := pickString(v, "target_lang", "target_language"); l != "" {
				s.TargetLang = l
			}
		default:
			s.Source = scalarText(v)
		}
		if s.Source != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return templateFor(model.KindTranslation).payload()
	}
	return &TranslationPayload{Sentences: out}
}

func repairWriting(src source) Payload {
	p := &WritingPayload{
		Prompt:  firstNonBlank(src.text, src.str("prompt", "task", "question", "instruction", "topic")),
		Example: src.str("example", "sample_answer"),
	}
	if n, ok := pickInt(src.body, "word_count_target", "word_count", "min_words"); ok && n > 0 {
		p.WordCountTarget = n
	}
	if blank(p.Prompt) {
		return templateFor(model.KindWriting).payload()
	}
	return p
}

func repairRoleplay(src source) Payload {
	p := &RoleplayPayload{
		Scenario:      firstNonBlank(src.str("scenario", "situation", "context", "setting", "description"), src.text),
		StarterPrompt: src.str("starter_prompt", "starter", "opening_line"),
		Roles:         Roles{User: "Learner", AI: "Partner"},
	}
	if roles := pickMap(src.body, "roles"); roles != nil {
		p.Roles.User = firstNonBlank(pickString(roles, "user", "learner", "student"), p.Roles.User)
		p.Roles.AI = firstNonBlank(pickString(roles, "ai", "assistant", "partner", "bot"), p.Roles.AI)
	} else if names := textList(pickList(src.body, "roles")); len(names) >= 2 {
		p.Roles = Roles{User: names[0], AI: names[1]}
	}
	for _, e := range src.list("sample_exchanges", "examples", "dialogue") {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		ex := Exchange{User: pickString(m, "user", "learner"), AI: pickString(m, "ai", "partner", "assistant")}
		if ex.User != "" || ex.AI != "" {
			p.SampleExchanges = append(p.SampleExchanges, ex)
		}
	}
	if blank(p.Scenario) {
		return templateFor(model.KindRoleplay).payload()
	}
	return p
}

func repairCards(src source) Payload {
	seen := map[string]struct{}{}
	var cards []Card
	for _, e := range src.list("cards", "flashcards", "items", "vocabulary") {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		c := Card{
			Front: pickString(m, "front", "word", "term", "question", "source"),
			Back:  pickString(m, "back", "translation", "definition", "answer", "meaning"),
		}
		if c.Front == "" || c.Back == "" {
			continue
		}
		key := Fold(c.Front)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cards = append(cards, c)
	}
	if len(cards) == 0 {
		return templateFor(model.KindCards).payload()
	}
	return &CardsPayload{Cards: cards}
}

func repairChecklist(src source) Payload {
	var steps []string
	for _, s := range textList(src.list("steps", "items", "tasks", "checklist"), "instruction", "text", "title", "step", "label") {
		if keepStep(s) {
			steps = append(steps, s)
		}
	}
	steps = dedupe(steps)
	if len(steps) == 0 {
		return templateFor(model.KindChecklist).payload()
	}
	return &ChecklistPayload{
		Steps:       steps,
		ProofPrompt: src.str("proof_prompt", "proof", "proof_required"),
	}
}

// keepStep drops header-like ("Feladat:") and trivially short entries.
func keepStep(s string) bool {
	s = strings.TrimSpace(s)
	return CharCount(s) >= MinStepChars && !strings.HasSuffix(s, ":")
}

func repairLesson(src source) Payload {
	p := &LessonPayload{
		Summary:   src.str("summary", "introduction", "overview", "hook", "text"),
		KeyPoints: dedupe(textList(src.list("key_points", "keyPoints", "points", "takeaways"), "text", "point")),
		BodyMD:    firstNonBlank(src.str("body_md", "markdown", "lesson_md", "content_md"), src.text),
	}
	for _, e := range src.list("vocabulary_table", "vocabulary", "words") {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		v := VocabEntry{
			Word:          pickString(m, "word", "term", "front"),
			Translation:   pickString(m, "translation", "meaning", "back"),
			Pronunciation: pickString(m, "pronunciation"),
			Example:       pickString(m, "example_sentence", "example"),
		}
		if v.Word != "" {
			p.Vocabulary = append(p.Vocabulary, v)
		}
	}
	if !p.Renderable() {
		return templateFor(model.KindLesson).payload()
	}
	return p
}

func repairBriefing(src source) Payload {
	p := &BriefingPayload{
		Situation: firstNonBlank(src.str("situation", "context", "scenario", "summary"), src.text),
		Outcome:   src.str("outcome", "goal", "expected_outcome"),
	}
	if blank(p.Situation) {
		return templateFor(model.KindBriefing).payload()
	}
	return p
}

func repairFeedback(src source) Payload {
	p := &FeedbackPayload{
		Message:         firstNonBlank(src.str("message", "feedback", "summary", "comment"), src.text),
		ImprovedVersion: src.str("improved_version", "improved", "rewrite"),
		Corrections:     textList(src.list("corrections", "fixes"), "text", "correction", "fix"),
	}
	if !p.Renderable() {
		return templateFor(model.KindFeedback).payload()
	}
	return p
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if !blank(v) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
