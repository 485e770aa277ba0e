package text

import (
	"reflect"
	"testing"
)

func collectAssembler(deltas []string) []string {
	var got []string
	a := NewAssembler(func(s string) { got = append(got, s) })
	for _, d := range deltas {
		a.Write(d)
	}
	a.Flush()
	return got
}

func TestAssembler_SingleSentence(t *testing.T) {
	got := collectAssembler([]string{"Hello there."})
	want := []string{"Hello there."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestAssembler_SentenceSplitAcrossDeltas(t *testing.T) {
	got := collectAssembler([]string{"Hel", "lo the", "re. How are", " you?"})
	want := []string{"Hello there.", "How are you?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestAssembler_CJKTerminators(t *testing.T) {
	got := collectAssembler([]string{"你好，世界。今天天气", "怎么样？"})
	want := []string{"你好，世界。", "今天天气怎么样？"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestAssembler_ShortPrefixNotEmitted(t *testing.T) {
	// "1." alone is below the minimum fragment length and must ride along
	// with the following sentence.
	got := collectAssembler([]string{"1.", " First point."})
	want := []string{"1. First point."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestAssembler_FlushEmitsRemainder(t *testing.T) {
	got := collectAssembler([]string{"trailing text without terminator"})
	want := []string{"trailing text without terminator"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestAssembler_FlushEmpty(t *testing.T) {
	got := collectAssembler([]string{"", "   "})
	if len(got) != 0 {
		t.Errorf("Expected no fragments, got %v", got)
	}
}

func TestAssembler_NewlineTerminates(t *testing.T) {
	got := collectAssembler([]string{"first line\nsecond line"})
	want := []string{"first line", "second line"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
