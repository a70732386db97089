package wordsync

import (
	"fmt"
	"strings"
	"testing"
)

func TestInjectMarks_Empty(t *testing.T) {
	for _, text := range []string{"", "   ", "\t\n"} {
		ssml, wordMap := InjectMarks(text)
		if ssml != "<speak></speak>" {
			t.Errorf("InjectMarks(%q) ssml = %q, want minimal envelope", text, ssml)
		}
		if len(wordMap) != 0 {
			t.Errorf("InjectMarks(%q) word map has %d entries, want 0", text, len(wordMap))
		}
	}
}

func TestInjectMarks_TwoWords(t *testing.T) {
	ssml, wordMap := InjectMarks("Hello world!")

	want := `<speak><mark name="index_0"/>Hello <mark name="index_1"/>world!</speak>`
	if ssml != want {
		t.Errorf("ssml = %q, want %q", ssml, want)
	}

	if len(wordMap) != 2 {
		t.Fatalf("word map has %d entries, want 2", len(wordMap))
	}
	if wordMap[0].Word != "Hello" || wordMap[1].Word != "world!" {
		t.Errorf("words = [%q, %q], want [Hello, world!]", wordMap[0].Word, wordMap[1].Word)
	}
}

func TestInjectMarks_SequentialMarkers(t *testing.T) {
	texts := []string{
		"One",
		"I can't believe it's already Friday.",
		"Well, it happens   every week,  doesn't it?",
	}
	for _, text := range texts {
		_, wordMap := InjectMarks(text)
		words := Words(text)
		if len(wordMap) != len(words) {
			t.Errorf("InjectMarks(%q): map size = %d, want %d", text, len(wordMap), len(words))
			continue
		}
		for i, entry := range wordMap {
			if want := fmt.Sprintf("index_%d", i); entry.Mark != want {
				t.Errorf("entry %d mark = %q, want %q", i, entry.Mark, want)
			}
			if entry.Index != i {
				t.Errorf("entry %d index = %d, want %d", i, entry.Index, i)
			}
			if entry.Word != words[i] {
				t.Errorf("entry %d word = %q, want %q", i, entry.Word, words[i])
			}
		}
	}
}

func TestInjectMarks_PunctuationStaysAttached(t *testing.T) {
	_, wordMap := InjectMarks(`"Wait," she said.`)
	want := []string{`"Wait,"`, "she", "said."}
	if len(wordMap) != len(want) {
		t.Fatalf("map size = %d, want %d", len(wordMap), len(want))
	}
	for i, w := range want {
		if wordMap[i].Word != w {
			t.Errorf("word %d = %q, want %q", i, wordMap[i].Word, w)
		}
	}
}

func TestInjectMarks_EscapesXML(t *testing.T) {
	ssml, wordMap := InjectMarks("Tom & Jerry <3")

	if strings.Contains(ssml, " & ") || strings.Contains(ssml, "<3") {
		t.Errorf("ssml contains unescaped characters: %q", ssml)
	}
	if !strings.Contains(ssml, "&amp;") || !strings.Contains(ssml, "&lt;3") {
		t.Errorf("ssml missing escaped entities: %q", ssml)
	}

	// The word map keeps the literal text; only the SSML is escaped.
	if wordMap[1].Word != "&" {
		t.Errorf("word 1 = %q, want literal &", wordMap[1].Word)
	}
}

func TestMarkName(t *testing.T) {
	tests := []struct {
		i    int
		want string
	}{
		{0, "index_0"},
		{7, "index_7"},
		{42, "index_42"},
	}
	for _, tt := range tests {
		if got := MarkName(tt.i); got != tt.want {
			t.Errorf("MarkName(%d) = %q, want %q", tt.i, got, tt.want)
		}
	}
}
