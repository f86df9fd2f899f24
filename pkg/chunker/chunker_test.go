package chunker

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitIntoSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty input",
			text: "",
			want: []string(nil),
		},
		{
			name: "single sentence",
			text: "The radar module reports a fault.",
			want: []string{"The radar module reports a fault."},
		},
		{
			name: "multiple sentences",
			text: "Calibration failed. Retry the alignment! Did the target move?",
			want: []string{
				"Calibration failed.",
				"Retry the alignment!",
				"Did the target move?",
			},
		},
		{
			name: "newlines split",
			text: "First line\nSecond line\nThird line",
			want: []string{"First line", "Second line", "Third line"},
		},
		{
			name: "dotted version stays whole",
			text: "Firmware 2.5.1 resolves the fault. Install it.",
			want: []string{"Firmware 2.5.1 resolves the fault.", "Install it."},
		},
		{
			name: "unterminated trailing fragment",
			text: "Complete sentence. trailing fragment without a period",
			want: []string{"Complete sentence.", "trailing fragment without a period"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitIntoSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitIntoSentences() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func newTestChunker(t *testing.T, minTokens, maxTokens, overlapTokens int) *Chunker {
	t.Helper()
	c, err := New("cl100k_base", minTokens, maxTokens, overlapTokens)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestSplitEmptyInput(t *testing.T) {
	c := newTestChunker(t, 10, 50, 5)

	for _, text := range []string{"", "   ", "\n\n\t\n"} {
		pieces, err := c.Split(text)
		if err != nil {
			t.Fatalf("Split(%q) error = %v", text, err)
		}
		if len(pieces) != 0 {
			t.Errorf("Split(%q) = %d pieces, want 0", text, len(pieces))
		}
	}
}

func TestSplitSingleParagraph(t *testing.T) {
	c := newTestChunker(t, 10, 200, 20)

	text := "The forward camera communicates with the ADAS domain controller over CAN."
	pieces, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("Split() = %d pieces, want 1", len(pieces))
	}
	p := pieces[0]
	if p.Index != 0 {
		t.Errorf("Index = %d, want 0", p.Index)
	}
	if p.Content != text {
		t.Errorf("Content = %q, want %q", p.Content, text)
	}
	if p.StartChar != 0 {
		t.Errorf("StartChar = %d, want 0", p.StartChar)
	}
	if p.EndChar != len(text) {
		t.Errorf("EndChar = %d, want %d", p.EndChar, len(text))
	}
	if p.TokenCount <= 0 {
		t.Errorf("TokenCount = %d, want > 0", p.TokenCount)
	}
}

func TestSplitRespectsMaxTokens(t *testing.T) {
	c := newTestChunker(t, 10, 40, 8)

	var sb strings.Builder
	for i := 0; i < 12; i++ {
		sb.WriteString("The braking controller reads wheel speed sensors and adjusts hydraulic pressure on demand.")
		sb.WriteString("\n\n")
	}

	pieces, err := c.Split(sb.String())
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(pieces) < 2 {
		t.Fatalf("Split() = %d pieces, want several", len(pieces))
	}
	for _, p := range pieces {
		if p.TokenCount > 40 {
			t.Errorf("piece %d has %d tokens, exceeds max 40", p.Index, p.TokenCount)
		}
		if p.Content == "" {
			t.Errorf("piece %d is empty", p.Index)
		}
	}
	for i, p := range pieces {
		if p.Index != i {
			t.Errorf("piece %d has Index %d", i, p.Index)
		}
	}
}

func TestSplitOverlapCarriesTail(t *testing.T) {
	c := newTestChunker(t, 10, 30, 10)

	text := "The lidar unit depends on the central gateway. Sensor fusion runs on the domain controller.\n\n" +
		"Diagnostic code B1A00 indicates a blocked camera. Clean the windshield before recalibration."

	pieces, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(pieces) < 2 {
		t.Fatalf("Split() = %d pieces, want at least 2", len(pieces))
	}

	first, second := pieces[0], pieces[1]
	sentences := splitIntoSentences(first.Content)
	tail := sentences[len(sentences)-1]
	if !strings.HasPrefix(second.Content, tail) {
		t.Errorf("second piece does not start with overlap tail %q: %q", tail, second.Content)
	}
	if second.StartChar >= first.EndChar {
		t.Errorf("pieces do not overlap: first ends at %d, second starts at %d", first.EndChar, second.StartChar)
	}
}

func TestSplitDeterministic(t *testing.T) {
	c := newTestChunker(t, 10, 35, 8)

	text := "Steering angle sensor calibration drifted. Recalibrate after alignment.\n\n" +
		"The parking assist module polls ultrasonic sensors. Replace sensor three if echo is absent.\n\n" +
		"Supplier Bosch shipped revised firmware 4.2.0. It supersedes 4.1.9 on all variants."

	a, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	b, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Split() is not deterministic:\nfirst  %#v\nsecond %#v", a, b)
	}
}

func TestSplitOversizedUnbreakableBlock(t *testing.T) {
	c := newTestChunker(t, 5, 15, 0)

	// One paragraph, one sentence, far more than maxTokens, no boundary
	// to cut at.
	text := strings.Repeat("hex0xDEADBEEF", 60)

	pieces, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(pieces) < 2 {
		t.Fatalf("Split() = %d pieces, want hard-cut into several", len(pieces))
	}
	for _, p := range pieces {
		if p.TokenCount > 15 {
			t.Errorf("piece %d has %d tokens, exceeds max 15", p.Index, p.TokenCount)
		}
	}
}

func TestSplitCRLFNormalized(t *testing.T) {
	c := newTestChunker(t, 5, 100, 0)

	pieces, err := c.Split("First paragraph.\r\n\r\nSecond paragraph.")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("Split() = %d pieces, want 1", len(pieces))
	}
	if strings.Contains(pieces[0].Content, "\r") {
		t.Errorf("content retains carriage returns: %q", pieces[0].Content)
	}
}
