package helpers

import (
	"reflect"
	"testing"
)

func TestPartialStringField(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"field absent", `{"used_segments": []`, ""},
		{"value not started", `{"answer"`, ""},
		{"unterminated value", `{"answer": "U kunt de rente`, "U kunt de rente"},
		{"terminated value", `{"answer": "U kunt de rente aftrekken.", "used_segments"`, "U kunt de rente aftrekken."},
		{"decodes escapes", `{"answer": "regel één\nregel twee`, "regel één\nregel twee"},
		{"drops trailing half escape", `{"answer": "einde\`, "einde"},
		{"drops trailing half unicode escape", `{"answer": "einde\u00e`, "einde"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PartialStringField(tc.raw, "answer"); got != tc.want {
				t.Fatalf("PartialStringField(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestPartialStringArray(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"field absent", `{"answer": "x"}`, nil},
		{"empty array", `{"used_segments": []}`, nil},
		{"complete elements", `{"used_segments": ["seg-1", "seg-2"]}`, []string{"seg-1", "seg-2"}},
		{"unterminated final element omitted", `{"used_segments": ["seg-1", "seg-`, []string{"seg-1"}},
		{"array not closed", `{"used_segments": ["seg-1", "seg-2"`, []string{"seg-1", "seg-2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PartialStringArray(tc.raw, "used_segments")
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("PartialStringArray(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}
