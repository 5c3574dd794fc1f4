package room

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/pavelanni/focusroom/internal/i18n"
	"github.com/pavelanni/focusroom/internal/model"
)

// lessonBody unwraps {"title": ..., "content": {...}}; flat lessons are used
// as they are.
func lessonBody(lesson map[string]any) map[string]any {
	if c, ok := lesson["content"].(map[string]any); ok {
		return c
	}
	return lesson
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(cast.ToString(m[k])); s != "" {
			return s
		}
	}
	return ""
}

func maps(v any) []map[string]any {
	var out []map[string]any
	for _, e := range cast.ToSlice(v) {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func strs(v any) []string {
	if s, ok := v.(string); ok {
		v = []string{s}
	}
	var out []string
	for _, s := range cast.ToStringSlice(v) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Script turns a generated lesson into narration steps: an intro, one teach
// step per lesson section and the transition to the exercises.
func Script(ctx context.Context, lesson map[string]any, dayTitle string) []model.ScriptStep {
	var steps []model.ScriptStep
	add := func(typ model.StepType, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		n := len(steps)
		steps = append(steps, model.ScriptStep{ID: fmt.Sprintf("step-%d", n), Type: typ, Text: text, Position: n})
	}

	title := str(lesson, "title")
	if title == "" {
		title = dayTitle
	}
	c := lessonBody(lesson)

	add(model.StepIntro, i18n.Td(ctx, "script.intro", map[string]any{"Title": title}))
	add(model.StepTeach, str(c, "introduction", "summary"))

	if vocab := maps(c["vocabulary_table"]); len(vocab) > 0 {
		var b strings.Builder
		b.WriteString(i18n.T(ctx, "script.vocabulary"))
		b.WriteString("\n")
		for _, v := range vocab {
			b.WriteString("\n" + str(v, "word"))
			if p := str(v, "pronunciation"); p != "" {
				fmt.Fprintf(&b, ", %s: %s", i18n.T(ctx, "script.pronounced"), p)
			}
			fmt.Fprintf(&b, ", %s: %s.", i18n.T(ctx, "script.meaning"), str(v, "translation"))
			if ex := str(v, "example_sentence"); ex != "" {
				fmt.Fprintf(&b, " %s: %s", i18n.T(ctx, "script.example"), ex)
			}
		}
		add(model.StepTeach, b.String())
	}

	if g, ok := c["grammar_explanation"].(map[string]any); ok {
		var b strings.Builder
		b.WriteString(i18n.Td(ctx, "script.grammar", map[string]any{"Rule": str(g, "rule_title")}))
		b.WriteString("\n" + str(g, "explanation"))
		if exs := maps(g["examples"]); len(exs) > 0 {
			b.WriteString("\n" + i18n.T(ctx, "script.examples") + ": ")
			for _, ex := range exs[:min(3, len(exs))] {
				fmt.Fprintf(&b, "%s = %s. ", str(ex, "target"), str(ex, "translation", "hungarian"))
			}
		}
		add(model.StepTeach, b.String())
	}

	for _, d := range maps(c["dialogues"]) {
		var b strings.Builder
		b.WriteString(i18n.Td(ctx, "script.dialogue", map[string]any{"Title": str(d, "title", "scene")}))
		if ctxLine := str(d, "context"); ctxLine != "" {
			b.WriteString("\n" + ctxLine)
		}
		for _, line := range maps(d["lines"]) {
			fmt.Fprintf(&b, "\n%s: %s (%s).", str(line, "speaker"), str(line, "text"), str(line, "translation"))
		}
		add(model.StepTeach, b.String())
	}

	add(model.StepTeach, str(c, "hook"))
	if insight := str(c, "insight"); insight != "" {
		add(model.StepTeach, i18n.Td(ctx, "script.insight", map[string]any{"Insight": insight}))
	}

	if kps := strs(c["key_points"]); len(kps) > 0 {
		add(model.StepTeach, i18n.T(ctx, "script.key_points")+"\n- "+strings.Join(kps, "\n- "))
	}

	for _, block := range maps(c["lesson_flow"]) {
		add(model.StepTeach, str(block, "title", "title_hu")+".\n"+str(block, "body_md"))
	}

	add(model.StepTransition, i18n.T(ctx, "script.transition"))
	return steps
}

// LessonMarkdown renders a generated lesson as the markdown shown next to
// the narration. It returns "" for an empty lesson.
func LessonMarkdown(ctx context.Context, lesson map[string]any) string {
	if len(lesson) == 0 {
		return ""
	}
	var parts []string
	if title := str(lesson, "title", "subtitle"); title != "" {
		parts = append(parts, "# "+title)
	}
	c := lessonBody(lesson)

	if hook := str(c, "hook"); hook != "" {
		parts = append(parts, "\n"+hook)
	}
	for _, key := range []string{"micro_task_1", "micro_task_2"} {
		mt, ok := c[key].(map[string]any)
		if !ok || str(mt, "instruction") == "" {
			continue
		}
		parts = append(parts, "\n**"+str(mt, "instruction")+"**")
		for _, o := range strs(mt["options"]) {
			parts = append(parts, "  - "+o)
		}
	}
	if insight := str(c, "insight"); insight != "" {
		parts = append(parts, fmt.Sprintf("\n**%s:** %s", i18n.T(ctx, "lesson.insight"), insight))
	}
	if intro := str(c, "introduction", "summary"); intro != "" {
		parts = append(parts, "\n"+intro)
	}

	if vocab := maps(c["vocabulary_table"]); len(vocab) > 0 {
		parts = append(parts, "\n## "+i18n.T(ctx, "lesson.vocabulary"))
		for _, v := range vocab {
			line := "- **" + str(v, "word") + "**"
			if p := str(v, "pronunciation"); p != "" {
				line += " (" + p + ")"
			}
			parts = append(parts, line+" = "+str(v, "translation"))
			if ex := str(v, "example_sentence"); ex != "" {
				parts = append(parts, "  _"+ex+"_ ("+str(v, "example_translation")+")")
			}
		}
	}

	if g, ok := c["grammar_explanation"].(map[string]any); ok {
		parts = append(parts, "\n## "+i18n.Td(ctx, "lesson.grammar", map[string]any{"Rule": str(g, "rule_title")}))
		parts = append(parts, str(g, "explanation"))
		for _, ex := range maps(g["examples"]) {
			parts = append(parts, "- "+str(ex, "target")+" = "+str(ex, "translation", "hungarian"))
		}
	}

	for _, d := range maps(c["dialogues"]) {
		parts = append(parts, "\n## "+i18n.Td(ctx, "lesson.dialogue", map[string]any{"Title": str(d, "title", "scene")}))
		for _, line := range maps(d["lines"]) {
			parts = append(parts, fmt.Sprintf("**%s:** %s (%s)", str(line, "speaker"), str(line, "text"), str(line, "translation")))
		}
	}

	if kps := strs(c["key_points"]); len(kps) > 0 {
		parts = append(parts, "\n## "+i18n.T(ctx, "lesson.key_points"))
		for _, kp := range kps {
			parts = append(parts, "- "+kp)
		}
	}
	if ex := str(c, "example"); ex != "" {
		parts = append(parts, "\n_"+ex+"_")
	}
	for _, block := range maps(c["lesson_flow"]) {
		parts = append(parts, "\n## "+str(block, "title", "title_hu"), str(block, "body_md"))
	}
	if body := str(c, "body_md"); body != "" && len(parts) == 0 {
		parts = append(parts, body)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
