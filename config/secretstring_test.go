package config

import (
	"fmt"
	"strings"
	"testing"

	yaml "gopkg.in/yaml.v3"
)

func TestSecretString_String(t *testing.T) {
	tests := []struct {
		name  string
		input SecretString
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "cookie", input: "session=abcdef", want: SecretStringValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.input.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := fmt.Sprintf("%v", tt.input); got != tt.want {
				t.Errorf("Sprintf(%%v) = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecretString_Reveal(t *testing.T) {
	s := SecretString("session=abcdef")
	if s.Reveal() != "session=abcdef" {
		t.Errorf("Reveal() = %q", s.Reveal())
	}
}

func TestSecretString_MarshalYAML(t *testing.T) {
	type holder struct {
		Cookie SecretString `yaml:"cookie,omitempty"`
	}

	data, err := yaml.Marshal(holder{Cookie: "session=abcdef"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "abcdef") {
		t.Errorf("secret leaked into yaml: %s", data)
	}
	if !strings.Contains(string(data), SecretStringValue) {
		t.Errorf("expected masked value in yaml, got: %s", data)
	}

	var back holder
	if err := yaml.Unmarshal([]byte("cookie: session=xyz\n"), &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Cookie.Reveal() != "session=xyz" {
		t.Errorf("Unmarshal() cookie = %q, want %q", back.Cookie.Reveal(), "session=xyz")
	}
}
