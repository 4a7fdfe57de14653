package transform

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApplyOrdering(t *testing.T) {
	defaultRegistry = registry{
		"append-a": func(_ Context, c string) (string, error) { return c + "a", nil },
		"append-b": func(_ Context, c string) (string, error) { return c + "b", nil },
		"append-c": func(_ Context, c string) (string, error) { return c + "c", nil },
	}

	got := Apply(Context{}, "x", []string{"append-a", "append-b"}, []string{"append-c"}, discard())
	if got != "xabc" {
		t.Errorf("Apply = %q, want %q (global before rule-scoped, in order)", got, "xabc")
	}
}

func TestApplyFailingTransformSkipped(t *testing.T) {
	defaultRegistry = registry{
		"good": func(_ Context, c string) (string, error) { return c + "+good", nil },
		"bad": func(_ Context, c string) (string, error) {
			return "poisoned", errors.New("boom")
		},
	}

	got := Apply(Context{}, "start", []string{"good", "bad", "good"}, nil, discard())
	if got != "start+good+good" {
		t.Errorf("Apply = %q, want failing transform's output discarded", got)
	}
}

func TestApplyUnknownTransformSkipped(t *testing.T) {
	defaultRegistry = registry{
		"known": func(_ Context, c string) (string, error) { return c + "!", nil },
	}

	got := Apply(Context{}, "x", []string{"missing", "known"}, nil, discard())
	if got != "x!" {
		t.Errorf("Apply = %q, want unknown name skipped", got)
	}
}

func TestApplyPassesContext(t *testing.T) {
	var seen Context
	defaultRegistry = registry{
		"capture": func(tc Context, c string) (string, error) {
			seen = tc
			return c, nil
		},
	}

	tc := Context{ID: "src:docs/a", SourcePath: "docs/a.md", RuleIndex: 2, BasePath: "content"}
	Apply(tc, "x", nil, []string{"capture"}, discard())
	if seen != tc {
		t.Errorf("transform saw context %+v, want %+v", seen, tc)
	}
}

func TestRegistered(t *testing.T) {
	defaultRegistry = registry{
		"b": func(_ Context, c string) (string, error) { return c, nil },
		"a": func(_ Context, c string) (string, error) { return c, nil },
	}

	got := Registered()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Registered() = %v, want sorted [a b]", got)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	defaultRegistry = make(registry)
	fn := func(_ Context, c string) (string, error) { return c, nil }

	if err := Register("dup", fn); err != nil {
		t.Fatalf("first Register returned unexpected error: %v", err)
	}
	if err := Register("dup", fn); err == nil {
		t.Error("second Register should fail")
	}
}

func TestValidate(t *testing.T) {
	defaultRegistry = registry{
		"known": func(_ Context, c string) (string, error) { return c, nil },
	}

	if err := Validate([]string{"known"}); err != nil {
		t.Errorf("Validate of registered name returned %v", err)
	}
	if err := Validate([]string{"known", "nope"}); err == nil {
		t.Error("Validate should reject unregistered names")
	}
}
