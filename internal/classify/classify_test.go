package classify

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlens/devlens/pkg/types"
)

const verbs = "http://adlnet.gov/expapi/verbs"

func event(verb, object string) types.NormalizedEvent {
	return types.NormalizedEvent{ActorID: "a", Verb: verbs + "/" + verb, Object: object}
}

func TestClassify_Exemplars(t *testing.T) {
	tests := []struct {
		verb   string
		object string
		want   string
	}{
		{"viewed", "/auth/dashboard", CodeDashboard},
		{"interacted", "/course/week/1#week-page#material-button", CodeMaterialOpen},
		{"progressed", "/course/week/1/materials/2", CodeMaterialSlide},
		{"completed", "/course/week/1/materials/2", CodeMaterialDone},
		{"interacted", "/course/week/1/material-page#download-pdf-button", CodeMaterialPDF},
		{"interacted", "/files/download-pdf", CodeMaterialPDF},
		{"interacted", "/course/week/1/watch-video-button", CodeVideo},
		{"completed", "/course/week/1/video/3?videoProgress=1", CodeVideoDone},
		{"completed", "/course/Video-Complete", CodeVideoDone},
		{"interacted", "/course/week/1/week-page#start-quiz-button", CodeQuizStart},
		{"interacted", "/quiz-page#start-modal-start-button", CodeQuizStart},
		{"initialized", "/course/week/1/quiz/5", CodeQuizStart},
		{"interacted", "/quiz-page#nav-icon", CodeQuizNav},
		{"interacted", "/quiz-page#next-question-button", CodeQuizNav},
		{"progressed", "/course/week/1/quiz/5#question-3", CodeQuizNav},
		{"answered", "/course/week/1/quiz/5", CodeQuizAnswer},
		{"completed", "/course/week/1/quiz/5", CodeQuizSubmit},
		{"failed", "/course/week/1/quiz/5", CodeQuizTimeout},
		{"viewed", "/course/week/1/task", CodeTaskPage},
		{"interacted", "/task-page#select-project", CodeTaskSelect},
		{"completed", "/course/week/1/Assignment/2", CodeTaskSubmitOK},
		{"failed", "/course/week/1/assignment/2", CodeTaskSubmitFail},
		{"interacted", "/task-page#create-workspace-button", CodeTaskWorkspace},
		{"launched", "/auth/dashboard/workspace/editor", CodeEditorEnter},
		{"progressed", "/auth/dashboard/workspace/editor/file/main.go", CodeEditorType},
		{"interacted", "/auth/dashboard/workspace/editor/AI-Assist", CodeEditorAIRequest},
		{"responded", "/auth/dashboard/workspace/editor/ai-assist-response", CodeEditorAIReply},
		{"completed", "/auth/dashboard/workspace/editor/save/quick", CodeEditorSave},
		{"completed", "/course/feedback", CodeFeedback},
		{"interacted", "/feedback-page#submit-button", CodeFeedback},
		{"failed", "/course/feedback", CodeFeedbackFail},
	}

	c := Default()
	for _, tt := range tests {
		t.Run(tt.want+" "+tt.object, func(t *testing.T) {
			got, ok := c.Classify(event(tt.verb, tt.object))
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_RuleOrder(t *testing.T) {
	c := Default()
	tests := []struct {
		name   string
		verb   string
		object string
		want   string
	}{
		{"dashboard prefix wins over week page", "viewed", "/auth/dashboard/course/week/3", CodeDashboard},
		{"video completion wins over quiz submit", "completed", "/course/week/1/quiz/video-complete", CodeVideoDone},
		{"material completion wins over quiz submit", "completed", "/materials/quiz", CodeMaterialDone},
		{"material button wins over slide progress", "progressed", "/materials/week-page#material-button", CodeMaterialOpen},
		{"quiz answer needs quiz object", "answered", "/course/week/1/poll", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := c.Classify(event(tt.verb, tt.object))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_Unclassified(t *testing.T) {
	c := Default()
	for _, ev := range []types.NormalizedEvent{
		{},
		{Verb: verbs + "/viewed"},
		{Object: "/auth/dashboard"},
		event("viewed", "/public/landing"),
		event("viewed", "/Auth/Dashboard"),
	} {
		code, ok := c.Classify(ev)
		assert.False(t, ok, "verb=%q object=%q", ev.Verb, ev.Object)
		assert.Empty(t, code)
	}
}

func TestLabel_KeepsEveryEvent(t *testing.T) {
	events := []types.NormalizedEvent{
		event("initialized", "/quiz/1"),
		event("experienced", "/course/lesson/1"),
		event("answered", "/quiz/1"),
	}
	labeled, unmatched := Default().Label(events)
	require.Len(t, labeled, 3)
	assert.Equal(t, 1, unmatched)
	assert.Equal(t, CodeQuizStart, labeled[0].BehaviorCode)
	assert.False(t, labeled[1].Classified())
	assert.Equal(t, events[1], labeled[1].NormalizedEvent)

	coded := Coded(labeled)
	require.Len(t, coded, 2)
	assert.Equal(t, CodeQuizAnswer, coded[1].BehaviorCode)
}

func TestDefaultRules_UniqueCodes(t *testing.T) {
	seen := make(map[string]bool)
	for _, r := range DefaultRules() {
		assert.False(t, seen[r.Code], "duplicate code %s", r.Code)
		seen[r.Code] = true
		assert.NotEmpty(t, r.Description)
	}
	assert.Len(t, seen, 25)
}

func TestNew_CopiesRules(t *testing.T) {
	rules := []Rule{{Code: "X", Match: ObjectHas("x")}}
	c := New(rules)
	rules[0].Code = "Y"
	assert.Equal(t, []string{"X"}, c.Codes())
}

// TestProperty_FirstMatchWins checks that Classify always returns the code of
// the earliest matching rule and nothing when no rule matches.
func TestProperty_FirstMatchWins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	verbSuffixes := []string{"viewed", "progressed", "completed", "initialized", "answered",
		"failed", "launched", "interacted", "responded", "experienced"}
	fragments := []string{"/auth/dashboard", "/course/week/1", "/materials/", "/quiz", "/quiz/",
		"#question-", "/task", "assignment", "video", "complete", "/feedback", "#tab",
		"/workspace/editor", "/file/", "ai-assist", "-response", "/save/quick", "watch-video-button",
		"download-pdf", "week-page#material-button", "task-page#select-project"}

	c := Default()
	rules := DefaultRules()

	properties.Property("classification equals the first matching rule", prop.ForAll(
		func(vi int, parts []int) bool {
			object := ""
			for _, p := range parts {
				object += fragments[p]
			}
			ev := event(verbSuffixes[vi], object)

			want := ""
			for _, r := range rules {
				if r.Match(ev.Verb, ev.Object) {
					want = r.Code
					break
				}
			}
			got, ok := c.Classify(ev)
			return got == want && ok == (want != "")
		},
		gen.IntRange(0, len(verbSuffixes)-1),
		gen.SliceOfN(3, gen.IntRange(0, len(fragments)-1)),
	))

	properties.TestingRun(t)
}
