package templating

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr bool
	}{
		{"empty template", "", false},
		{"literal only", "objects/daily", false},
		{"single variable", "{{topic}}", false},
		{"variable with spaces", "{{ topic }}", false},
		{"variable with parameter", "{{start_offset:padding=true}}", false},
		{"mixed", "{{topic}}/{{partition}}/file", false},
		{"unmatched open", "{{topic", true},
		{"unmatched close", "topic}}", true},
		{"empty reference", "{{}}", true},
		{"empty name with parameter", "{{:padding=true}}", true},
		{"malformed parameter no value", "{{start_offset:padding=}}", true},
		{"malformed parameter no equals", "{{start_offset:padding}}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.source)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse(%q) error = %v, wantErr %v", tt.source, err, tt.wantErr)
			}
		})
	}
}

func TestTemplate_Variables(t *testing.T) {
	tmpl, err := Parse("{{topic}}-{{partition}}-{{topic}}/{{start_offset:padding=true}}")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got := tmpl.Variables()
	want := []string{"partition", "start_offset", "topic"}

	if len(got) != len(want) {
		t.Fatalf("len(Variables()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Variables()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTemplate_Calls(t *testing.T) {
	tmpl, err := Parse("{{timestamp:unit=yyyy}}/{{timestamp:unit=MM}}/{{topic}}")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	calls := tmpl.Calls()
	if len(calls) != 3 {
		t.Fatalf("len(Calls()) = %d, want 3", len(calls))
	}
	if calls[0].Name != "timestamp" || calls[0].Param.Value != "yyyy" {
		t.Errorf("Calls()[0] = %+v, want timestamp unit=yyyy", calls[0])
	}
	if calls[1].Param.Value != "MM" {
		t.Errorf("Calls()[1].Param.Value = %v, want MM", calls[1].Param.Value)
	}
	if !calls[2].Param.IsEmpty() {
		t.Errorf("Calls()[2].Param = %+v, want empty", calls[2].Param)
	}
}

func TestTemplate_Validate(t *testing.T) {
	allowed := map[string]bool{"topic": true, "partition": true}

	tests := []struct {
		name    string
		source  string
		wantErr bool
	}{
		{"all allowed", "{{topic}}-{{partition}}", false},
		{"literal only", "no variables", false},
		{"unknown variable", "{{topic}}-{{bogus}}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.source)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			err = tmpl.Validate(allowed)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTemplate_Render(t *testing.T) {
	binding := Binding{
		"topic": func(Parameter) string { return "events" },
		"start_offset": func(p Parameter) string {
			if p.Name == "padding" && p.BoolValue() {
				return "00000000000000000042"
			}
			return "42"
		},
	}

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"empty", "", ""},
		{"literal", "prefix/", "prefix/"},
		{"plain variable", "{{topic}}-{{start_offset}}", "events-42"},
		{"parameter applied", "{{start_offset:padding=true}}", "00000000000000000042"},
		{"parameter false", "{{start_offset:padding=false}}", "42"},
		{"whitespace tolerated", "{{ topic }}/{{ start_offset:padding=true }}", "events/00000000000000000042"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.source)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			got, err := tmpl.Render(binding)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTemplate_RenderUnbound(t *testing.T) {
	tmpl, err := Parse("{{topic}}")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	_, err = tmpl.Render(Binding{})
	if err == nil {
		t.Fatal("expected error for unbound variable")
	}
	if !strings.Contains(err.Error(), "unbound") {
		t.Errorf("error = %v, want unbound variable error", err)
	}
}

func TestTemplate_Source(t *testing.T) {
	source := "{{topic}}-{{partition}}"
	tmpl, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tmpl.Source() != source {
		t.Errorf("Source() = %v, want %v", tmpl.Source(), source)
	}
}

func TestParameter_BoolValue(t *testing.T) {
	tests := []struct {
		name  string
		param Parameter
		want  bool
	}{
		{"true", Parameter{Name: "padding", Value: "true"}, true},
		{"false", Parameter{Name: "padding", Value: "false"}, false},
		{"other value", Parameter{Name: "padding", Value: "yes"}, false},
		{"empty", Empty, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.param.BoolValue(); got != tt.want {
				t.Errorf("BoolValue() = %v, want %v", got, tt.want)
			}
		})
	}
}
