package langdetect

import "testing"

func TestDetectShortSampleIsUndetermined(t *testing.T) {
	t.Parallel()

	if got := Detect("  ok  "); got != Undetermined {
		t.Fatalf("unexpected code for short sample: %q", got)
	}
}

func TestDetectEnglish(t *testing.T) {
	t.Parallel()

	got := Detect("The central bank raised interest rates again on Wednesday, citing persistent inflation.")
	if got != "en" {
		t.Fatalf("unexpected language: %q", got)
	}
}
