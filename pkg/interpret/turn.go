package interpret

import (
	"fmt"
	"strings"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/pkg/domain"
)

// Field names of the primary model reply. The Chinese forms are accepted for
// prompts and catalogs written in that language.
var (
	actionKeys     = []string{"action", "whatCanIDo", "动作指令"}
	nextStepKeys   = []string{"next_step", "nextStep", "下一步指令"}
	stepResultKeys = []string{"step_result", "expected_result", "stepResult", "当前这一步理想执行结果"}
	doneKeys       = []string{"done", "completed", "is_complete", "执行完当前这一步任务是否完成"}
)

// ParseTurn decodes the primary model reply into a ModelTurn.
// When the reply has no action field, the remaining fields stand in for it only
// if they already hold a recognizable action; a null action stays nil.
func ParseTurn(reply string) (domain.ModelTurn, error) {
	obj, err := ParseObject(reply)
	if err != nil {
		return domain.ModelTurn{}, fmt.Errorf("parse model reply: %w", err)
	}
	f, _ := asFields(obj)

	turn := domain.ModelTurn{Raw: reply}
	_, action, hasAction := f.lookup(actionKeys)
	if hasAction {
		turn.Action = action
	}
	var meta []string
	if k, v, ok := f.lookup(nextStepKeys); ok {
		turn.NextStep = textOf(v)
		meta = append(meta, k)
	}
	if k, v, ok := f.lookup(stepResultKeys); ok {
		turn.StepResult = textOf(v)
		meta = append(meta, k)
	}
	if k, v, ok := f.lookup(doneKeys); ok {
		turn.SelfComplete = truthy(v)
		meta = append(meta, k)
	}

	if !hasAction {
		rest := f.without(meta...)
		if len(rest.keys) > 0 && !NewRecognizer(logging.NewNop()).Recognize(rest.object()).Empty() {
			turn.Action = rest.object()
		}
	}
	return turn, nil
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "y", "true", "1", "是", "完成":
			return true
		}
	}
	return false
}
