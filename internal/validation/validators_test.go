package validation

import (
	"strings"
	"testing"
)

type angleBatch struct {
	Prompt string   `validate:"max=4000,prompt_text"`
	Angles []string `validate:"min=1,max=12,dive,angle_label"`
}

func TestValidate_CustomTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      angleBatch
		wantErr string
	}{
		{name: "valid", in: angleBatch{Prompt: "red mug\non oak", Angles: []string{"front", "worm's eye"}}},
		{name: "no angles", in: angleBatch{}, wantErr: "Angles"},
		{name: "blank angle", in: angleBatch{Angles: []string{"front", "  "}}, wantErr: "angle_label"},
		{name: "long angle", in: angleBatch{Angles: []string{strings.Repeat("a", MaxAngleLength+1)}}, wantErr: "angle_label"},
		{name: "control char", in: angleBatch{Prompt: "bad\x00prompt", Angles: []string{"front"}}, wantErr: "prompt_text"},
		{name: "too many", in: angleBatch{Angles: make13()}, wantErr: "max=12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate.Struct(tt.in)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate.Struct() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate.Struct() error = nil")
			}
			if got := FirstError(err); !strings.Contains(got, tt.wantErr) {
				t.Errorf("FirstError() = %q, want it to contain %q", got, tt.wantErr)
			}
		})
	}
}

func make13() []string {
	out := make([]string, 13)
	for i := range out {
		out[i] = "front"
	}
	return out
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()
	if got := SanitizeText("  hello\x07 world\n "); got != "hello world" {
		t.Errorf("SanitizeText() = %q", got)
	}
}
