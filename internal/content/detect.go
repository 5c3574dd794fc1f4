package content

import (
	"strings"

	"github.com/pavelanni/focusroom/internal/model"
)

// kindAliases maps legacy and generator-specific tags onto canonical kinds.
var kindAliases = map[string]model.Kind{
	"flashcard":         model.KindCards,
	"flashcards":        model.KindCards,
	"content":           model.KindLesson,
	"smart_lesson":      model.KindLesson,
	"exercise":          model.KindRoleplay,
	"dialogue":          model.KindRoleplay,
	"task":              model.KindChecklist,
	"speaking":          model.KindChecklist,
	"practice_speaking": model.KindChecklist,
	"single_select":     model.KindQuiz,
}

// tagKeys are inspected in order for an explicit kind tag.
var tagKeys = []string{"kind", "type", "practice_type", "subtype"}

// ParseKind resolves a tag value to a canonical kind. Unknown values are
// rejected so that detection can fall through to the next signal.
func ParseKind(v any) (model.Kind, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if k := model.Kind(s); k.Valid() {
		return k, true
	}
	if k, ok := kindAliases[s]; ok {
		return k, true
	}
	return "", false
}

// DetectKind picks the variant of raw. Explicit tags win over structural
// sniffing; an item with no usable signal is treated as free writing.
// Detection is idempotent: DetectKind(Repair(raw).Map()) == DetectKind(raw).
func DetectKind(raw map[string]any) model.Kind {
	for _, key := range tagKeys {
		if k, ok := ParseKind(raw[key]); ok {
			return k
		}
	}
	src := sourceOf(raw)
	if src.text != "" {
		return model.KindWriting
	}
	if k, ok := sniff(src.body); ok {
		return k
	}
	if pickList(raw, "quiz") != nil {
		return model.KindQuiz
	}
	if pickList(raw, "flashcards") != nil {
		return model.KindCards
	}
	return model.KindWriting
}

// sniff infers the kind from distinctive payload fields.
func sniff(body map[string]any) (model.Kind, bool) {
	if body == nil {
		return "", false
	}
	has := func(keys ...string) bool {
		_, ok := pick(body, keys...)
		return ok
	}
	switch {
	case pickList(body, "sentences") != nil:
		return model.KindTranslation, true
	case pickList(body, "questions") != nil:
		return model.KindQuiz, true
	case pickList(body, "cards") != nil:
		return model.KindCards, true
	case has("scenario") || pickMap(body, "roles") != nil:
		return model.KindRoleplay, true
	case pickList(body, "steps") != nil:
		return model.KindChecklist, true
	case has("situation", "outcome"):
		return model.KindBriefing, true
	case has("improved_version", "corrections"):
		return model.KindFeedback, true
	case has("summary", "key_points", "vocabulary_table", "vocabulary", "introduction", "body_md"):
		return model.KindLesson, true
	case pickString(body, "prompt") != "":
		return model.KindWriting, true
	}
	return "", false
}

// source is the part of a raw item the repair functions read from.
type source struct {
	raw  map[string]any
	body map[string]any
	text string // content given as a bare string
}

func sourceOf(raw map[string]any) source {
	src := source{raw: raw}
	switch c := raw["content"].(type) {
	case map[string]any:
		if d, ok := c["data"].(map[string]any); ok {
			src.body = d
		} else {
			src.body = c
		}
	case string:
		src.text = strings.TrimSpace(c)
		src.body = raw
	default:
		src.body = raw
	}
	if src.body == nil {
		src.body = map[string]any{}
	}
	return src
}

// list looks in the body first and then at the top level.
func (s source) list(keys ...string) []any {
	if l := pickList(s.body, keys...); l != nil {
		return l
	}
	return pickList(s.raw, keys...)
}

func (s source) str(keys ...string) string {
	if v := pickString(s.body, keys...); v != "" {
		return v
	}
	return pickString(s.raw, keys...)
}
