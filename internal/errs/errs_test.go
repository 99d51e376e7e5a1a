package errs

import (
	"errors"
	"testing"
)

func TestConstructors_SetExpectedCategory(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want Category
	}{
		{"validation", Validation(SourceRuntime, "id", "msg"), CategoryValidation},
		{"routing", Routing(SourceRouter, "id", "msg"), CategoryRouting},
		{"tool", Tool(SourceToolRuntime, "id", "msg"), CategoryTool},
		{"agent", Agent(SourceAgentRuntime, "id", "msg"), CategoryAgent},
		{"json", JSONErr(SourceJSONEngine, "id", "msg"), CategoryJSON},
		{"security", Security(SourceToolRuntime, "id", "msg"), CategorySecurity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Category != tc.want {
				t.Fatalf("expected category %q, got %q", tc.want, tc.err.Category)
			}
		})
	}
}

func TestIsSecurity(t *testing.T) {
	if !IsSecurity(Security(SourceToolRuntime, "denied", "nope")) {
		t.Fatal("expected security error to be detected")
	}
	if IsSecurity(Validation(SourceRuntime, "id", "msg")) {
		t.Fatal("did not expect a validation error to be detected as security")
	}
	if IsSecurity(errors.New("plain error")) {
		t.Fatal("did not expect a plain error to be detected as security")
	}
}

func TestWithHelpers_CopyWithoutMutatingOriginal(t *testing.T) {
	base := Validation(SourceRuntime, "id", "msg")
	withStage := base.WithStage("stage-1")
	withTask := withStage.WithTask("task-1")
	withDetails := withTask.WithDetails(map[string]any{"k": "v"})
	withSeverity := withDetails.WithSeverity(SeverityFatal)

	if base.StageID != "" || base.TaskID != "" || base.Severity == SeverityFatal {
		t.Fatal("expected base error to be unmodified by chained With* calls")
	}
	if withSeverity.StageID != "stage-1" || withSeverity.TaskID != "task-1" || withSeverity.Severity != SeverityFatal {
		t.Fatalf("expected chained fields to propagate, got %+v", withSeverity)
	}
}

func TestWrap_PreservesUnderlyingError(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(CategoryUnknown, SourceMemory, "wrapped", cause)
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
	if Wrap(CategoryUnknown, SourceMemory, "id", nil) != nil {
		t.Fatal("expected Wrap(nil) to return nil")
	}
}
