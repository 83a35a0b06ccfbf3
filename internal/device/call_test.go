package device

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCall_Float(t *testing.T) {
	tests := []struct {
		name    string
		call    Call
		want    float64
		wantErr bool
	}{
		{"positional float64", Call{Args: []any{1.5}}, 1.5, false},
		{"keyword", Call{Kwargs: map[string]any{"x": 2.5}}, 2.5, false},
		{"cbor unsigned", Call{Args: []any{uint64(7)}}, 7, false},
		{"cbor negative", Call{Args: []any{int64(-7)}}, -7, false},
		{"json number", Call{Args: []any{json.Number("3.25")}}, 3.25, false},
		{"absent uses default", Call{}, 9, false},
		{"string rejected", Call{Args: []any{"1"}}, 0, true},
		{"both forms", Call{Args: []any{1.0}, Kwargs: map[string]any{"x": 2.0}}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call.Float(0, "x", 9)
			if tt.wantErr {
				if kind, _ := Classify(err); err == nil || kind != KindTypeError {
					t.Errorf("Float() error = %v, want %s", err, KindTypeError)
				}
				return
			}
			if err != nil {
				t.Fatalf("Float() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Float() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCall_Required(t *testing.T) {
	_, err := Call{}.RequireFloat(0, "x")
	kind, args := Classify(err)
	if kind != KindTypeError {
		t.Errorf("RequireFloat() kind = %q, want %q", kind, KindTypeError)
	}
	if msg, _ := args[0].(string); !strings.Contains(msg, `"x"`) {
		t.Errorf("RequireFloat() message = %v, want it to name \"x\"", args[0])
	}

	if _, err := (Call{}).RequireInt(-1, "n"); err == nil {
		t.Error("RequireInt() without a value should fail")
	}

	n, err := Call{Kwargs: map[string]any{"n": 4.0}}.RequireInt(-1, "n")
	if err != nil {
		t.Fatalf("RequireInt() error = %v", err)
	}
	if n != 4 {
		t.Errorf("RequireInt() = %d, want 4", n)
	}
}

func TestCall_Int(t *testing.T) {
	tests := []struct {
		name    string
		call    Call
		want    int
		wantErr bool
	}{
		{"cbor unsigned", Call{Args: []any{uint64(3)}}, 3, false},
		{"fractional rejected", Call{Args: []any{2.5}}, 0, true},
		{"absent uses default", Call{}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call.Int(0, "n", 1)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Int() = %d, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Int() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Int() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCall_BoolAndString(t *testing.T) {
	b, err := Call{Kwargs: map[string]any{"on": true}}.Bool(-1, "on", false)
	if err != nil || !b {
		t.Errorf("Bool() = %v, %v; want true", b, err)
	}

	if _, err := (Call{Args: []any{1.0}}).Bool(0, "on", false); err == nil {
		t.Error("Bool() with a number should fail")
	}

	s, err := Call{Args: []any{"diff"}}.String(0, "mode", "mag1")
	if err != nil || s != "diff" {
		t.Errorf("String() = %q, %v; want diff", s, err)
	}

	s, err = Call{}.String(0, "mode", "mag1")
	if err != nil || s != "mag1" {
		t.Errorf("String() default = %q, %v; want mag1", s, err)
	}
}
