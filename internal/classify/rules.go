package classify

import "strings"

// Predicate tests the verb and object of one event.
type Predicate func(verb, object string) bool

// VerbIs matches verbs ending in suffix, e.g. "/viewed" for a full xAPI IRI.
func VerbIs(suffix string) Predicate {
	return func(verb, _ string) bool { return strings.HasSuffix(verb, suffix) }
}

// ObjectPrefix matches objects starting with prefix.
func ObjectPrefix(prefix string) Predicate {
	return func(_, object string) bool { return strings.HasPrefix(object, prefix) }
}

// ObjectHas matches objects containing sub (case sensitive).
func ObjectHas(sub string) Predicate {
	return func(_, object string) bool { return strings.Contains(object, sub) }
}

// ObjectLacks matches objects not containing sub.
func ObjectLacks(sub string) Predicate {
	return func(_, object string) bool { return !strings.Contains(object, sub) }
}

// ObjectHasAllFold matches objects containing every token, ignoring case.
func ObjectHasAllFold(tokens ...string) Predicate {
	return func(_, object string) bool {
		low := strings.ToLower(object)
		for _, tok := range tokens {
			if !strings.Contains(low, strings.ToLower(tok)) {
				return false
			}
		}
		return true
	}
}

// All matches when every predicate matches.
func All(preds ...Predicate) Predicate {
	return func(verb, object string) bool {
		for _, p := range preds {
			if !p(verb, object) {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one predicate matches.
func Any(preds ...Predicate) Predicate {
	return func(verb, object string) bool {
		for _, p := range preds {
			if p(verb, object) {
				return true
			}
		}
		return false
	}
}

// Rule maps a predicate to a behavior code.
type Rule struct {
	Code        string
	Description string
	Match       Predicate
}

// Behavior codes.
const (
	CodeDashboard       = "DAS"
	CodeWeekView        = "WK_VIEW"
	CodeMaterialOpen    = "MAT_OPEN"
	CodeMaterialSlide   = "MAT_SLIDE"
	CodeMaterialDone    = "MAT_DONE"
	CodeMaterialPDF     = "MAT_PDF"
	CodeVideo           = "VID"
	CodeVideoDone       = "VID_DONE"
	CodeQuizStart       = "QUIZ_START"
	CodeQuizNav         = "QUIZ_NAV"
	CodeQuizAnswer      = "QUIZ_ANSWER"
	CodeQuizSubmit      = "QUIZ_SUBMIT"
	CodeQuizTimeout     = "QUIZ_TIMEOUT"
	CodeTaskPage        = "TASK_PAGE"
	CodeTaskSelect      = "TASK_SELECT"
	CodeTaskSubmitOK    = "TASK_SUBMIT_OK"
	CodeTaskSubmitFail  = "TASK_SUBMIT_FAIL"
	CodeTaskWorkspace   = "TASK_WS_CREATE"
	CodeEditorEnter     = "WE_ENTER"
	CodeEditorType      = "WE_TYPE"
	CodeEditorAIRequest = "WE_AI_REQUEST"
	CodeEditorAIReply   = "WE_AI_RESPONSE"
	CodeEditorSave      = "WE_SAVE"
	CodeFeedback        = "FEED"
	CodeFeedbackFail    = "FEED_FAIL"
)

// DefaultRules returns the LMS behavior taxonomy in evaluation order.
//
// Order matters: the first match wins. DAS precedes WK_VIEW, so dashboard
// views of week pages are reported as DAS. Within each group the button
// rules (pure object matches) come before verb-qualified rules that could
// overlap them.
func DefaultRules() []Rule {
	return []Rule{
		// Dashboard
		{CodeDashboard, "dashboard viewed", All(VerbIs("/viewed"), ObjectPrefix("/auth/dashboard"))},
		{CodeWeekView, "week page viewed", All(VerbIs("/viewed"), ObjectHas("/auth/dashboard/course/week/"), ObjectLacks("#tab"))},

		// Materials
		{CodeMaterialOpen, "material opened", ObjectHas("week-page#material-button")},
		{CodeMaterialSlide, "material slide progressed", All(VerbIs("/progressed"), ObjectHas("/materials/"))},
		{CodeMaterialDone, "material completed", All(VerbIs("/completed"), ObjectHas("/materials/"))},
		{CodeMaterialPDF, "material pdf downloaded", Any(ObjectHas("material-page#download-pdf-button"), ObjectHas("download-pdf"))},

		// Video
		{CodeVideo, "video started", ObjectHas("watch-video-button")},
		{CodeVideoDone, "video completed", All(VerbIs("/completed"), Any(ObjectHas("videoProgress"), ObjectHasAllFold("video", "complete")))},

		// Quiz
		{CodeQuizStart, "quiz started", Any(
			ObjectHas("week-page#start-quiz-button"),
			ObjectHas("quiz-page#start-modal-start-button"),
			All(VerbIs("/initialized"), ObjectHas("/quiz/")),
		)},
		{CodeQuizNav, "quiz navigated", Any(
			ObjectHas("quiz-page#nav-icon"),
			ObjectHas("quiz-page#prev-question-button"),
			ObjectHas("quiz-page#next-question-button"),
			All(VerbIs("/progressed"), ObjectHas("#question-")),
		)},
		{CodeQuizAnswer, "quiz answered", All(VerbIs("/answered"), ObjectHas("/quiz"))},
		{CodeQuizSubmit, "quiz submitted", All(VerbIs("/completed"), ObjectHas("/quiz"))},
		{CodeQuizTimeout, "quiz timed out", All(VerbIs("/failed"), ObjectHas("/quiz"))},

		// Coding task
		{CodeTaskPage, "task page viewed", All(VerbIs("/viewed"), ObjectHas("/course/week/"), ObjectHas("/task"))},
		{CodeTaskSelect, "task project selected", ObjectHas("task-page#select-project")},
		{CodeTaskSubmitOK, "assignment submitted", All(VerbIs("/completed"), ObjectHasAllFold("assignment"))},
		{CodeTaskSubmitFail, "assignment failed", All(VerbIs("/failed"), ObjectHasAllFold("assignment"))},
		{CodeTaskWorkspace, "workspace created", ObjectHas("task-page#create-workspace-button")},

		// Workspace editor
		{CodeEditorEnter, "editor launched", All(VerbIs("/launched"), ObjectHas("/auth/dashboard/workspace/editor"))},
		{CodeEditorType, "editor typing", All(VerbIs("/progressed"), ObjectHas("/auth/dashboard/workspace/editor/file/"))},
		{CodeEditorAIRequest, "ai assist requested", All(VerbIs("/interacted"), ObjectHasAllFold("ai-assist"))},
		{CodeEditorAIReply, "ai assist responded", All(VerbIs("/responded"), ObjectHasAllFold("ai-assist-response"))},
		{CodeEditorSave, "file saved", All(VerbIs("/completed"), ObjectHasAllFold("/save/quick"))},

		// Feedback
		{CodeFeedback, "feedback submitted", Any(All(VerbIs("/completed"), ObjectHas("/feedback")), ObjectHas("feedback-page#submit-button"))},
		{CodeFeedbackFail, "feedback failed", All(VerbIs("/failed"), ObjectHas("/feedback"))},
	}
}
