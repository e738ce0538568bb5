package title

import "testing"

func strp(s string) *string { return &s }

func TestCanonicalSessionTakesPriority(t *testing.T) {
	r := Resolve(Inputs{
		CanonicalSessionName: strp("my-session"),
		IsManaged:            true,
		HandshakeConfirmed:   true,
		PaneTitle:            "ignored",
	})
	if r.Quality != CanonicalSession || r.Label != "my-session" {
		t.Fatalf("got %+v", r)
	}
}

func TestHandshakeConfirmedRequiresNonEmptyTitle(t *testing.T) {
	r := Resolve(Inputs{HandshakeConfirmed: true, PaneTitle: ""})
	if r.Quality == HandshakeConfirmed {
		t.Fatalf("empty title must not qualify for handshake tier")
	}
}

func TestDeterministicBindingUsesSessionKeyAsTitle(t *testing.T) {
	r := Resolve(Inputs{DeterministicSessionKey: strp("s1")})
	if r.Quality != DeterministicBinding || r.Label != "s1" {
		t.Fatalf("got %+v", r)
	}
}

func TestHeuristicTitleRequiresProviderTitleAndManaged(t *testing.T) {
	r := Resolve(Inputs{Provider: strp("claude"), PaneTitle: "hi", IsManaged: true})
	if r.Quality != HeuristicTitle || r.Label != "hi" {
		t.Fatalf("got %+v", r)
	}

	r2 := Resolve(Inputs{Provider: strp("claude"), PaneTitle: "hi", IsManaged: false})
	if r2.Quality != Unmanaged {
		t.Fatalf("unmanaged pane must not get HeuristicTitle, got %+v", r2)
	}
}

func TestFallbackToUnmanaged(t *testing.T) {
	r := Resolve(Inputs{PaneTitle: "whatever"})
	if r.Quality != Unmanaged || r.Label != "whatever" {
		t.Fatalf("got %+v", r)
	}
}

func TestFormatMaxLenZeroIsEmpty(t *testing.T) {
	r := Resolve(Inputs{DeterministicSessionKey: strp("s1")})
	if got := Format(r, 0); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatMaxLenOneIsPrefixOnly(t *testing.T) {
	r := Resolve(Inputs{DeterministicSessionKey: strp("s1")})
	if got := Format(r, 1); got != "○" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatEllipsisOnlyWhenTruncated(t *testing.T) {
	r := Resolve(Inputs{DeterministicSessionKey: strp("abcdef")})
	full := Format(r, 100)
	if full != "○ abcdef" {
		t.Fatalf("got %q", full)
	}

	truncated := Format(r, 4)
	if truncated == full {
		t.Fatalf("expected truncation to differ from full string")
	}
	runes := []rune(truncated)
	if runes[len(runes)-1] != []rune(Ellipsis)[0] {
		t.Fatalf("truncated output must end in ellipsis, got %q", truncated)
	}
	if len(runes) != 4 {
		t.Fatalf("expected exactly maxLen runes, got %d (%q)", len(runes), truncated)
	}
}

func TestFormatPrefixMarkers(t *testing.T) {
	cases := []struct {
		r    Result
		want string
	}{
		{Result{Quality: CanonicalSession, Label: "x"}, "●"},
		{Result{Quality: HandshakeConfirmed, Label: "x"}, "●"},
		{Result{Quality: DeterministicBinding, Label: "x"}, "○"},
		{Result{Quality: HeuristicTitle, Label: "x"}, "○"},
		{Result{Quality: Unmanaged, Label: "x"}, "·"},
	}
	for _, c := range cases {
		got := Format(c.r, 1)
		if got != c.want {
			t.Fatalf("quality %v: got %q want %q", c.r.Quality, got, c.want)
		}
	}
}
