package docload

import (
	"reflect"
	"testing"

	"github.com/drivetrace/backend/pkg/domain"
)

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		want     domain.ContentType
	}{
		{
			name:     "ota filename",
			filename: "ota_2024_06_camera.md",
			content:  "generic body",
			want:     domain.ContentReleaseNote,
		},
		{
			name:     "firmware update content",
			filename: "doc.txt",
			content:  "This firmware update improves lane keeping.",
			want:     domain.ContentReleaseNote,
		},
		{
			name:     "datasheet filename",
			filename: "radar_datasheet.txt",
			content:  "generic body",
			want:     domain.ContentHardwareSpec,
		},
		{
			name:     "dtc in content",
			filename: "doc.txt",
			content:  "Stored code B1A00 after cold start.",
			want:     domain.ContentDiagnosticLog,
		},
		{
			name:     "repair content",
			filename: "doc.txt",
			content:  "Repair procedure for the washer pump.",
			want:     domain.ContentRepairNote,
		},
		{
			name:     "fallback",
			filename: "doc.txt",
			content:  "General information about the vendor relationship.",
			want:     domain.ContentSupplierDoc,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectContentType(tt.filename, tt.content); got != tt.want {
				t.Errorf("DetectContentType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectVehicleSystem(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    domain.VehicleSystem
	}{
		{name: "adas", content: "Adaptive cruise control target loss.", want: domain.SystemADAS},
		{name: "braking", content: "ABS pump runs continuously.", want: domain.SystemBraking},
		{name: "steering", content: "EPS torque sensor drift.", want: domain.SystemSteering},
		{name: "powertrain", content: "Transmission shift delay after update.", want: domain.SystemPowertrain},
		{name: "network", content: "Gateway drops frames on the CAN bus.", want: domain.SystemNetwork},
		{name: "no match", content: "Quarterly supplier review minutes.", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectVehicleSystem(tt.content); got != tt.want {
				t.Errorf("DetectVehicleSystem() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSeverity(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    domain.Severity
	}{
		{name: "critical outranks", content: "Critical safety recall, low cosmetic impact elsewhere.", want: domain.SeverityCritical},
		{name: "high", content: "Important stability improvement.", want: domain.SeverityHigh},
		{name: "medium", content: "Moderate degradation in range.", want: domain.SeverityMedium},
		{name: "low", content: "Minor cosmetic change.", want: domain.SeverityLow},
		{name: "none", content: "Informational memo.", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectSeverity(tt.content); got != tt.want {
				t.Errorf("DetectSeverity() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectModelYears(t *testing.T) {
	content := "Applies to 2023 and 2021 builds, re-validated in 2023."
	want := []int{2021, 2023}
	if got := DetectModelYears(content); !reflect.DeepEqual(got, want) {
		t.Errorf("DetectModelYears() = %v, want %v", got, want)
	}
	if got := DetectModelYears("no years here, not even 1999"); got != nil {
		t.Errorf("DetectModelYears() = %v, want nil", got)
	}
}

func TestDetectVINPatterns(t *testing.T) {
	content := "Affected: 1HGBH41JXMN109186 and 5YJSA1E26MF123456, again 1HGBH41JXMN109186."
	want := []string{"1HGBH41JXMN109186", "5YJSA1E26MF123456"}
	if got := DetectVINPatterns(content); !reflect.DeepEqual(got, want) {
		t.Errorf("DetectVINPatterns() = %v, want %v", got, want)
	}
	// I, O, Q never appear in a VIN
	if got := DetectVINPatterns("IOQBH41JXMN109186"); got != nil {
		t.Errorf("DetectVINPatterns() accepted invalid VIN: %v", got)
	}
}

func TestDetectTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "markdown heading",
			content: "intro line\n# Camera Firmware 2.1.0\nbody",
			want:    "Camera Firmware 2.1.0",
		},
		{
			name:    "second level heading",
			content: "## Radar Alignment Procedure\nbody",
			want:    "Radar Alignment Procedure",
		},
		{
			name:    "title-like first line",
			content: "Front Camera Service Bulletin\n\nDetails follow.",
			want:    "Front Camera Service Bulletin",
		},
		{
			name:    "no title",
			content: "short.\nalso short.",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectTitle(tt.content); got != tt.want {
				t.Errorf("DetectTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChunkFlags(t *testing.T) {
	if !HasDTCCodes("stored B1A00 active") {
		t.Error("HasDTCCodes() missed a DTC")
	}
	if HasDTCCodes("part number X99999Z") {
		t.Error("HasDTCCodes() false positive")
	}
	if !HasVersionInfo("firmware 4.2 rollout") {
		t.Error("HasVersionInfo() missed firmware version")
	}
	if HasVersionInfo("chapter 4 paragraph 2") {
		t.Error("HasVersionInfo() false positive")
	}
	if !HasComponentInfo("the radar reports ghosts") {
		t.Error("HasComponentInfo() missed component keyword")
	}
	if HasComponentInfo("annual budget review") {
		t.Error("HasComponentInfo() false positive")
	}
}
