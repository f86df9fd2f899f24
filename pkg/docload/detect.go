package docload

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/drivetrace/backend/pkg/domain"
)

var (
	dtcCodeRe = regexp.MustCompile(`(?i)\b[BPUC]\d{4}\b`)
	vinRe     = regexp.MustCompile(`\b[A-HJ-NPR-Z0-9]{17}\b`)
	yearRe    = regexp.MustCompile(`\b(20\d{2})\b`)

	versionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)v\d+\.\d+\.\d+`),
		regexp.MustCompile(`(?i)version\s+\d+\.\d+`),
		regexp.MustCompile(`(?i)firmware\s+\d+\.\d+`),
		regexp.MustCompile(`(?i)software\s+\d+\.\d+`),
	}
)

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// DetectContentType classifies a document from its filename and content.
// Filename keywords win over content keywords; supplier documentation is
// the fallback when nothing more specific matches.
func DetectContentType(filename, content string) domain.ContentType {
	name := strings.ToLower(filename)
	body := strings.ToLower(content)

	if containsAny(name, []string{"ota", "update", "release", "firmware"}) ||
		containsAny(body, []string{"over-the-air", "software update", "firmware update", "release notes"}) {
		return domain.ContentReleaseNote
	}
	if containsAny(name, []string{"spec", "datasheet", "hardware"}) ||
		containsAny(body, []string{"specifications", "datasheet", "pin configuration"}) {
		return domain.ContentHardwareSpec
	}
	if containsAny(name, []string{"log", "diagnostic", "dtc"}) || dtcCodeRe.MatchString(content) {
		return domain.ContentDiagnosticLog
	}
	if containsAny(name, []string{"repair", "fix", "solution", "troubleshoot"}) ||
		containsAny(body, []string{"repair procedure", "troubleshooting", "solution"}) {
		return domain.ContentRepairNote
	}
	return domain.ContentSupplierDoc
}

// DetectVehicleSystem finds the vehicle subsystem a document talks about,
// or "" when none of the keyword groups match.
func DetectVehicleSystem(content string) domain.VehicleSystem {
	body := strings.ToLower(content)

	checks := []struct {
		system   domain.VehicleSystem
		keywords []string
	}{
		{domain.SystemADAS, []string{"adas", "advanced driver", "lane keep", "adaptive cruise", "collision", "autonomous"}},
		{domain.SystemBraking, []string{"brake", "abs", "esp", "stability control"}},
		{domain.SystemSteering, []string{"steering", "eps"}},
		{domain.SystemPowertrain, []string{"engine", "transmission", "powertrain", "drivetrain"}},
		{domain.SystemInfotainment, []string{"infotainment", "navigation", "audio", "display"}},
		{domain.SystemHVAC, []string{"hvac", "climate control", "air conditioning"}},
		{domain.SystemLighting, []string{"headlight", "taillight", "lighting"}},
		{domain.SystemBodyControl, []string{"body control", "door module", "window lift", "seat module"}},
		{domain.SystemNetwork, []string{"can bus", "can-fd", "flexray", "gateway", "ethernet backbone"}},
	}

	for _, check := range checks {
		if containsAny(body, check.keywords) {
			return check.system
		}
	}
	return ""
}

// DetectSeverity grades the impact a document describes, or "" when no
// severity wording is present.
func DetectSeverity(content string) domain.Severity {
	body := strings.ToLower(content)

	switch {
	case containsAny(body, []string{"critical", "safety", "recall", "urgent"}):
		return domain.SeverityCritical
	case containsAny(body, []string{"high", "important", "significant"}):
		return domain.SeverityHigh
	case containsAny(body, []string{"medium", "moderate"}):
		return domain.SeverityMedium
	case containsAny(body, []string{"low", "minor", "cosmetic"}):
		return domain.SeverityLow
	}
	return ""
}

// DetectModelYears collects distinct four-digit model years, sorted
// ascending.
func DetectModelYears(content string) []int {
	seen := map[int]bool{}
	for _, m := range yearRe.FindAllString(content, -1) {
		year, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		seen[year] = true
	}
	if len(seen) == 0 {
		return nil
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// DetectVINPatterns collects distinct 17-character VINs (I, O and Q are
// not valid VIN characters), sorted for determinism.
func DetectVINPatterns(content string) []string {
	seen := map[string]bool{}
	for _, m := range vinRe.FindAllString(content, -1) {
		seen[m] = true
	}
	if len(seen) == 0 {
		return nil
	}
	vins := make([]string, 0, len(seen))
	for v := range seen {
		vins = append(vins, v)
	}
	sort.Strings(vins)
	return vins
}

// DetectTitle pulls a title from the first lines of the document: a
// markdown heading in the first ten lines wins, otherwise the first early
// line that looks like a heading (short, no trailing period).
func DetectTitle(content string) string {
	lines := strings.Split(content, "\n")

	limit := 10
	if len(lines) < limit {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
		if strings.HasPrefix(line, "## ") {
			return strings.TrimSpace(line[3:])
		}
	}

	limit = 5
	if len(lines) < limit {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		line = strings.TrimSpace(line)
		if len(line) > 10 && len(line) < 100 && !strings.HasSuffix(line, ".") {
			return line
		}
	}
	return ""
}

// HasDTCCodes reports whether text mentions a diagnostic trouble code.
func HasDTCCodes(text string) bool {
	return dtcCodeRe.MatchString(text)
}

// HasVersionInfo reports whether text mentions a software or firmware
// version.
func HasVersionInfo(text string) bool {
	for _, re := range versionRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var componentKeywords = []string{
	"sensor", "module", "controller", "ecu", "actuator",
	"camera", "radar", "lidar", "brake", "steering",
	"engine", "transmission", "battery", "motor",
}

// HasComponentInfo reports whether text mentions a hardware component.
func HasComponentInfo(text string) bool {
	return containsAny(strings.ToLower(text), componentKeywords)
}
