package insight

import "testing"

func TestValidateOptionsRejectsUnknownOption(t *testing.T) {
	err := ValidateOptions(nil, map[string]any{"bogus": true})
	if err == nil {
		t.Fatal("expected an error for an undeclared option")
	}
}

func TestValidateOptionsAcceptsWithinNumberRange(t *testing.T) {
	specs := []OptionSpec{{Name: "top_k", Kind: KindNumber, Min: 1, Max: 10}}
	if err := ValidateOptions(specs, map[string]any{"top_k": float64(5)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateOptionsRejectsOutOfRangeNumber(t *testing.T) {
	specs := []OptionSpec{{Name: "top_k", Kind: KindNumber, Min: 1, Max: 10}}
	if err := ValidateOptions(specs, map[string]any{"top_k": float64(50)}); err == nil {
		t.Fatal("expected an out-of-range error")
	}
}

func TestValidateOptionsRejectsWrongTypeForBoolean(t *testing.T) {
	specs := []OptionSpec{{Name: "verbose", Kind: KindBoolean}}
	if err := ValidateOptions(specs, map[string]any{"verbose": "yes"}); err == nil {
		t.Fatal("expected a type error")
	}
}

func TestValidateOptionsAcceptsDeclaredOptionValue(t *testing.T) {
	specs := []OptionSpec{{Name: "mode", Kind: KindOption, Values: []string{"fast", "accurate"}}}
	if err := ValidateOptions(specs, map[string]any{"mode": "accurate"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateOptionsRejectsUndeclaredOptionValue(t *testing.T) {
	specs := []OptionSpec{{Name: "mode", Kind: KindOption, Values: []string{"fast", "accurate"}}}
	if err := ValidateOptions(specs, map[string]any{"mode": "turbo"}); err == nil {
		t.Fatal("expected a rejection of an undeclared enum value")
	}
}

func TestValidateOptionsButtonIgnoresValue(t *testing.T) {
	specs := []OptionSpec{{Name: "run", Kind: KindButton}}
	if err := ValidateOptions(specs, map[string]any{"run": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
