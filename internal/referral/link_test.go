package referral

import (
	"testing"

	"partner-bot/internal/store"
)

func TestBuildLinkPrefixes(t *testing.T) {
	link, err := BuildLink("ABC123", store.ProgramDirect, "shop_bot")
	if err != nil {
		t.Fatalf("build direct link: %v", err)
	}
	if link != "https://t.me/shop_bot?start=ref_direct_ABC123" {
		t.Fatalf("unexpected direct link: %s", link)
	}

	link, err = BuildLink("ABC123", store.ProgramMultiLevel, "@shop_bot")
	if err != nil {
		t.Fatalf("build multi link: %v", err)
	}
	if link != "https://t.me/shop_bot?start=ref_multi_ABC123" {
		t.Fatalf("unexpected multi link: %s", link)
	}
}

func TestBuildLinkRejectsMalformedInput(t *testing.T) {
	if _, err := BuildLink("", store.ProgramDirect, "shop_bot"); err == nil {
		t.Fatal("expected error for empty code")
	}
	if _, err := BuildLink("ABC", store.ProgramDirect, ""); err == nil {
		t.Fatal("expected error for empty bot username")
	}
	if _, err := BuildLink("ABC", store.ProgramType("WEEKLY"), "shop_bot"); err == nil {
		t.Fatal("expected error for unknown program type")
	}
}

func TestParseStartPayloadRoundTrip(t *testing.T) {
	code, program, ok := ParseStartPayload("ref_direct_XY99")
	if !ok || code != "XY99" || program != store.ProgramDirect {
		t.Fatalf("unexpected parse result: %q %q %v", code, program, ok)
	}

	code, program, ok = ParseStartPayload("ref_multi_XY99")
	if !ok || code != "XY99" || program != store.ProgramMultiLevel {
		t.Fatalf("unexpected parse result: %q %q %v", code, program, ok)
	}

	for _, payload := range []string{"", "hello", "ref_direct_", "ref_weekly_X"} {
		if _, _, ok := ParseStartPayload(payload); ok {
			t.Fatalf("expected parse failure for %q", payload)
		}
	}
}
