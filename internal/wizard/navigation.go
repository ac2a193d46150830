package wizard

import "github.com/cvwizard/backend/internal/model"

// handleGotoStage only validates the request; the actual substage change is
// applied centrally by nextSubstage once dispatch returns, so that
// navigation shares one code path regardless of which handler ran.
func handleGotoStage(a *actionCtx) (string, error) {
	target, _ := a.action.Payload["stage"].(string)
	if _, ok := navigationTarget[target]; !ok {
		return "", userError("unknown navigation target %q", target)
	}
	return "ok", nil
}

// nextSubstage applies WIZARD_GOTO_STAGE navigation after every other
// handler has already set a.meta.Substage to its own next value. Forward
// jumps past the session's current major step are refused (a stage can only
// be reached by completing the stages before it).
func nextSubstage(current model.Substage, a *actionCtx) model.Substage {
	if a.action.ID != "WIZARD_GOTO_STAGE" {
		return a.meta.Substage
	}

	target, _ := a.action.Payload["stage"].(string)
	dest, ok := navigationTarget[target]
	if !ok {
		return current
	}

	destRank, curRank := majorStep[dest], majorStep[current]
	if destRank == 0 || destRank > curRank {
		return current
	}
	return dest
}
