package crisis

import "testing"

func TestDetectSelfHarmPhrases(t *testing.T) {
	cases := []string{
		"I want to kill myself",
		"sometimes i think about SUICIDE",
		"I've been cutting myself at night",
		"everyone would be better off without me",
	}
	for _, text := range cases {
		if !Detect(text) {
			t.Fatalf("expected crisis detection for %q", text)
		}
	}
}

func TestDetectIsCaseInsensitiveSubstring(t *testing.T) {
	if !Detect("honestly I WANT TO DIE right now") {
		t.Fatal("expected detection regardless of case")
	}
	if !Detect("my uncle hits me when dad is away") {
		t.Fatal("expected detection for abuse disclosure")
	}
}

func TestDetectIgnoresSafeText(t *testing.T) {
	cases := []string{
		"I had a great day at school today",
		"my hamster died last year and I still miss him",
		"can you help me with my math homework",
	}
	for _, text := range cases {
		if Detect(text) {
			t.Fatalf("unexpected crisis detection for %q", text)
		}
	}
}
