package storage

import (
	"context"
	"strings"
	"testing"
)

func TestSearchPattern(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		want   string
		active bool
	}{
		{"madrid", "%madrid%", true},
		{"  madrid  ", "%madrid%", true},
		{"", "", false},
		{"   ", "", false},
		{"\t\n", "", false},
	}
	for _, tc := range cases {
		got, active := SearchPattern(tc.in)
		if got != tc.want || active != tc.active {
			t.Fatalf("SearchPattern(%q) = (%q, %v), want (%q, %v)", tc.in, got, active, tc.want, tc.active)
		}
	}
}

func TestSortSpanish_AccentsOrderNaturally(t *testing.T) {
	t.Parallel()

	got := []string{"Zamora", "Ávila", "Cádiz", "Barcelona"}
	SortSpanish(got)

	want := []string{"Ávila", "Barcelona", "Cádiz", "Zamora"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SortSpanish = %v, want %v", got, want)
		}
	}
}

func TestNew_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported-kind error, got %v", err)
	}
}

func TestNew_EmptyKind(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	t.Parallel()

	factory := func(context.Context, Config) (Repository, error) { return nil, nil }

	Register("test-dup", factory)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register("test-dup", factory)
}

func TestRegister_EmptyKindPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on empty kind")
		}
	}()
	Register("", func(context.Context, Config) (Repository, error) { return nil, nil })
}
