package docload

import (
	"errors"
	"strings"
	"testing"

	"github.com/drivetrace/backend/pkg/domain"
)

func TestExtractTextPlain(t *testing.T) {
	text, err := ExtractText("notes.txt", []byte("  DTC B1A00 observed on camera module.  \n"))
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "DTC B1A00 observed on camera module." {
		t.Errorf("ExtractText() = %q", text)
	}
}

func TestExtractTextMarkdown(t *testing.T) {
	md := "# Release Notes\n\n- **Camera** firmware v2.1.0\n- See [details](https://example.com/r21)\n"
	text, err := ExtractText("release.md", []byte(md))
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	for _, banned := range []string{"#", "**", "](", "- "} {
		if strings.Contains(text, banned) {
			t.Errorf("markdown artifact %q survives in %q", banned, text)
		}
	}
	for _, want := range []string{"Release Notes", "Camera firmware v2.1.0", "details"} {
		if !strings.Contains(text, want) {
			t.Errorf("ExtractText() missing %q in %q", want, text)
		}
	}
}

func TestExtractTextCSV(t *testing.T) {
	csvIn := "code,component\nB1A00,Camera Module\nU0100,Gateway"
	text, err := ExtractText("dtc.csv", []byte(csvIn))
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	want := "code | component\nB1A00 | Camera Module\nU0100 | Gateway"
	if text != want {
		t.Errorf("ExtractText() = %q, want %q", text, want)
	}
}

func TestExtractTextJSON(t *testing.T) {
	jsonIn := `{"component":"Camera Module","codes":["B1A00","B1A01"],"supplier":{"name":"Bosch"}}`
	text, err := ExtractText("report.json", []byte(jsonIn))
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	for _, want := range []string{"component: Camera Module", "B1A00", "name: Bosch"} {
		if !strings.Contains(text, want) {
			t.Errorf("ExtractText() missing %q in:\n%s", want, text)
		}
	}

	// sorted keys keep output stable
	again, err := ExtractText("report.json", []byte(jsonIn))
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != again {
		t.Errorf("json flattening is not deterministic")
	}
}

func TestExtractTextMalformed(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
	}{
		{name: "empty file", filename: "empty.txt", data: ""},
		{name: "whitespace only", filename: "blank.log", data: "   \n\t"},
		{name: "unsupported extension", filename: "firmware.bin", data: "\x00\x01"},
		{name: "invalid json", filename: "broken.json", data: "{not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractText(tt.filename, []byte(tt.data))
			var malformed *domain.MalformedDocumentError
			if !errors.As(err, &malformed) {
				t.Errorf("ExtractText() error = %v, want MalformedDocumentError", err)
			}
		})
	}
}

func TestFileHashStable(t *testing.T) {
	a := FileHash([]byte("camera calibration log"))
	b := FileHash([]byte("camera calibration log"))
	c := FileHash([]byte("camera calibration log "))
	if a != b {
		t.Errorf("FileHash() not stable: %s vs %s", a, b)
	}
	if a == c {
		t.Errorf("FileHash() collision for different content")
	}
	if len(a) != 64 {
		t.Errorf("FileHash() length = %d, want 64", len(a))
	}
}
