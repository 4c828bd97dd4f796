package transcribe

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/example/transcribe/api-go/internal/model"
)

func approx() cmp.Option { return cmpopts.EquateApprox(0, 1e-9) }

func TestMergeSegmentsBoundaryCases(t *testing.T) {
	got := MergeSegments([]model.Segment{
		{Start: 0.2, End: 1.0, Text: "hello"},
		{Start: 1.2, End: 2.0, Text: "world"},
	})
	want := []model.Segment{{Start: 0.2, End: 2.0, Text: "hello world"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merge mismatch (-want +got):\n%s", diff)
	}

	got = MergeSegments([]model.Segment{
		{Start: 0.2, End: 1.0, Text: "Hello."},
		{Start: 1.2, End: 2.0, Text: "World"},
	})
	if len(got) != 2 {
		t.Fatalf("terminal punctuation merged: %+v", got)
	}
}

func TestMergeSegmentsPredicate(t *testing.T) {
	cases := []struct {
		name  string
		first string
		gap   float64
		want  int
	}{
		{"small gap no punctuation", "and then", 0.3, 1},
		{"gap at threshold", "and then", 0.5, 2},
		{"large gap", "and then", 2, 2},
		{"question mark", "really?", 0.1, 2},
		{"exclamation", "wow!", 0.1, 2},
		{"semicolon", "first;", 0.1, 2},
		{"comma merges", "well,", 0.1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MergeSegments([]model.Segment{
				{Start: 0, End: 1, Text: tc.first},
				{Start: 1 + tc.gap, End: 3, Text: "next"},
			})
			if len(got) != tc.want {
				t.Fatalf("len = %d, want %d", len(got), tc.want)
			}
		})
	}
}

func TestMergeSegmentsProperties(t *testing.T) {
	in := []model.Segment{
		{Start: 0, End: 1, Text: "a"},
		{Start: 1.1, End: 2, Text: "b."},
		{Start: 2.1, End: 3, Text: "c"},
		{Start: 5, End: 6, Text: "d"},
		{Start: 6.2, End: 7, Text: "e"},
	}
	orig := append([]model.Segment(nil), in...)
	out := MergeSegments(in)

	if diff := cmp.Diff(orig, in); diff != "" {
		t.Fatalf("input mutated:\n%s", diff)
	}
	if len(out) > len(in) {
		t.Fatalf("output grew: %d > %d", len(out), len(in))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Start <= out[i-1].Start {
			t.Fatalf("starts not increasing at %d: %+v", i, out)
		}
	}
	want := []string{"a b.", "c", "d e"}
	if len(out) != len(want) {
		t.Fatalf("out = %+v", out)
	}
	for i, w := range want {
		if out[i].Text != w {
			t.Fatalf("out[%d].Text = %q, want %q", i, out[i].Text, w)
		}
	}
}

func TestMergeSegmentsEmpty(t *testing.T) {
	if got := MergeSegments(nil); got == nil || len(got) != 0 {
		t.Fatalf("MergeSegments(nil) = %#v", got)
	}
}

func TestChunkBoundaryScenario(t *testing.T) {
	chunks, err := PlanChunks(45*16000, 16000, 30)
	if err != nil {
		t.Fatalf("PlanChunks() error = %v", err)
	}
	first, err := ExtractSegments("<|time_25.00|> the quick brown fox <|time_29.70|>", chunks[0].Offset)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ExtractSegments("<|time_0.00|> jumps over the dog. <|time_3.00|>", chunks[1].Offset)
	if err != nil {
		t.Fatal(err)
	}
	if second[0].Start != 30 {
		t.Fatalf("second chunk start = %v, want 30", second[0].Start)
	}

	merged := MergeSegments(append(first, second...))
	want := []model.Segment{{Start: 25, End: 33, Text: "the quick brown fox jumps over the dog."}}
	if diff := cmp.Diff(want, merged, approx()); diff != "" {
		t.Fatalf("boundary merge mismatch (-want +got):\n%s", diff)
	}
}
