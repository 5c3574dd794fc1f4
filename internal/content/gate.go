package content

import (
	"fmt"

	"github.com/pavelanni/focusroom/internal/model"
)

// Gate rule names, in the order they are checked.
const (
	RuleMinChars    = "min_chars"
	RuleMinItems    = "min_items"
	RuleMinMessages = "min_messages"
	RuleProof       = "proof"
	RuleLowEffort   = "low_effort"
)

// InteractionState is what the learner has done on an item so far.
type InteractionState struct {
	Chars     int
	Items     int
	Messages  int
	Text      string
	ProofText string
}

// Progress is a normalized (current, required) pair for display.
type Progress struct {
	Current  int `json:"current"`
	Required int `json:"required"`
}

// Gate is the result of a completion check.
type Gate struct {
	OK       bool     `json:"ok"`
	Rule     string   `json:"rule,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Progress Progress `json:"progress"`
}

// GateError is returned when a submission does not meet its item's
// interaction requirements.
type GateError struct {
	Gate Gate
}

func (e *GateError) Error() string {
	return fmt.Sprintf("content: %s not met: %s", e.Gate.Rule, e.Gate.Reason)
}

// CheckValidationState decides whether an item may be completed. The first
// failing rule wins, in this order: minimum characters, minimum items,
// minimum messages, then the checklist proof. Read-only kinds pass once the
// counting rules are satisfied.
func CheckValidationState(kind model.Kind, rules ValidationRules, st InteractionState) Gate {
	if rules.MinChars > 0 && st.Chars < rules.MinChars {
		return fail(RuleMinChars, fmt.Sprintf("write at least %d characters", rules.MinChars), st.Chars, rules.MinChars)
	}
	if rules.MinItems > 0 && st.Items < rules.MinItems {
		return fail(RuleMinItems, fmt.Sprintf("complete at least %d items", rules.MinItems), st.Items, rules.MinItems)
	}
	if rules.MinMessages > 0 && st.Messages < rules.MinMessages {
		return fail(RuleMinMessages, fmt.Sprintf("send at least %d messages", rules.MinMessages), st.Messages, rules.MinMessages)
	}
	if kind.ReadOnly() {
		return pass(st)
	}
	if kind == model.KindChecklist && rules.RequireProof {
		need := rules.ProofMinChars
		if need <= 0 {
			need = DefaultProofMinChars
		}
		if n := CharCount(st.ProofText); n < need {
			return fail(RuleProof, fmt.Sprintf("describe your work in at least %d characters", need), n, need)
		}
	}
	if freeText(kind) {
		for _, s := range []string{st.Text, st.ProofText} {
			if s != "" && IsLowEffort(s) {
				return fail(RuleLowEffort, "answer in your own words", 0, 1)
			}
		}
	}
	return pass(st)
}

// freeText kinds take open-ended answers where "ok" is never real work.
func freeText(k model.Kind) bool {
	return k == model.KindWriting || k == model.KindRoleplay || k == model.KindChecklist
}

func fail(rule, reason string, current, required int) Gate {
	return Gate{
		Rule:     rule,
		Reason:   reason,
		Progress: Progress{Current: min(max(current, 0), required), Required: required},
	}
}

func pass(st InteractionState) Gate {
	n := max(st.Chars, st.Items, st.Messages, 1)
	return Gate{OK: true, Progress: Progress{Current: n, Required: n}}
}
