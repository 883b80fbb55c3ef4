package llm

import (
	"context"
	"net/http"
	"testing"
)

func TestExtractNameKnownNameFastPath(t *testing.T) {
	client, f := newFakeCompletions(t, `{"first_name":"Wrong"}`)
	e := NewNameExtractor(client, discardLogger())

	name, err := e.ExtractName(context.Background(), "where is my box", "sarah cohen")
	if err != nil {
		t.Fatalf("ExtractName: %v", err)
	}
	if name != "Sarah" {
		t.Errorf("name = %q, want Sarah", name)
	}
	if f.count() != 0 {
		t.Errorf("model called %d times with a known name", f.count())
	}
}

func TestExtractNameWhitespaceKnownName(t *testing.T) {
	client, f := newFakeCompletions(t, `{"first_name":"david"}`)
	e := NewNameExtractor(client, discardLogger())

	name, err := e.ExtractName(context.Background(), "Thanks, David", "   ")
	if err != nil {
		t.Fatalf("ExtractName: %v", err)
	}
	if name != "David" {
		t.Errorf("name = %q, want David", name)
	}
	if f.count() != 1 {
		t.Errorf("whitespace-only known name should fall through to the model, %d calls", f.count())
	}
}

func TestExtractNameFromModel(t *testing.T) {
	client, f := newFakeCompletions(t, `{"first_name":"david"}`)
	e := NewNameExtractor(client, discardLogger())

	name, err := e.ExtractName(context.Background(), "Thanks, David", "")
	if err != nil {
		t.Fatalf("ExtractName: %v", err)
	}
	if name != "David" {
		t.Errorf("name = %q, want David", name)
	}
	if got := f.lastRequest(t).Model; got != nameModel {
		t.Errorf("model = %s, want %s", got, nameModel)
	}
}

func TestExtractNameModelFailureFallsBack(t *testing.T) {
	client, f := newFakeCompletions(t, ``)
	f.status = http.StatusInternalServerError
	e := NewNameExtractor(client, discardLogger())

	name, err := e.ExtractName(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("ExtractName should absorb model errors, got %v", err)
	}
	if name != defaultName {
		t.Errorf("name = %q, want %q", name, defaultName)
	}
}

func TestExtractNameImplausibleCandidate(t *testing.T) {
	client, _ := newFakeCompletions(t, `{"first_name":"x"}`)
	e := NewNameExtractor(client, discardLogger())

	name, err := e.ExtractName(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("ExtractName: %v", err)
	}
	if name != defaultName {
		t.Errorf("name = %q, want %q", name, defaultName)
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"sarah", "Sarah"},
		{"  RACHEL. ", "Rachel"},
		{"o'brien", "O'brien"},
		{"éloïse", "Éloïse"},
		{"jean-luc", "Jean-luc"},
		{"x", ""},
		{"12345", ""},
		{"sarah cohen", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := cleanName(tt.raw); got != tt.want {
			t.Errorf("cleanName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
