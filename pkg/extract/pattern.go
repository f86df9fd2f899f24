package extract

import (
	"regexp"
	"strings"

	"github.com/drivetrace/backend/pkg/domain"
)

// PatternExtractor finds entities and relationships through fixed domain
// syntax. Exact-syntax tokens (diagnostic codes, VINs, versions) carry
// confidence 1.0; fuzzy matches (components, systems, suppliers) are
// scored from keyword evidence.
type PatternExtractor struct{}

// NewPatternExtractor creates a PatternExtractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

var (
	componentRes = []*regexp.Regexp{
		regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+(?:ECU|Module|Controller|Unit))\b`),
		regexp.MustCompile(`\b(?:ECU|Module|Controller|Unit)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`),
		regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+(?:Sensor|Actuator|Motor|Pump))\b`),
		regexp.MustCompile(`\b(?:Sensor|Actuator|Motor|Pump)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`),
	}

	systemRes = []*regexp.Regexp{
		regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s+System\b`),
		regexp.MustCompile(`\b(ADAS|ABS|ESP|EPS|TCM|ECM|BCM|PCM)\b`),
	}

	supplierRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Supplier|Manufacturer|Vendor|OEM):\s*([A-Z][a-zA-Z\s&.]+?)(?:\n|$|,)`),
		regexp.MustCompile(`\b(Bosch|Continental|Denso|Delphi|Valeo|ZF|Magna|Aptiv|Visteon|Harman)\b`),
		regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s+(?:GmbH|Inc\.|Corp\.|Ltd\.|AG|SE)\b`),
	}

	dtcRe     = regexp.MustCompile(`(?i)\b([BPUC]\d{4})\b`)
	versionRe = regexp.MustCompile(`(?i)(?:Version|Ver\.|Firmware|Software|v)\s*(\d+\.\d+(?:\.\d+)?)|\b(v?\d+\.\d+\.\d+)\b`)
	vinRe     = regexp.MustCompile(`\b([A-HJ-NPR-Z0-9]{17})\b`)
)

var (
	componentKeywords = []string{
		"sensor", "actuator", "module", "controller", "ecu", "unit",
		"motor", "pump", "valve", "switch", "relay", "fuse",
		"camera", "radar", "lidar", "antenna", "display", "speaker",
	}
	systemKeywords = []string{
		"adas", "abs", "esp", "eps", "tcm", "ecm", "bcm", "pcm",
		"braking", "steering", "powertrain", "infotainment",
		"navigation", "climate", "lighting", "security",
	}
	supplierKeywords = []string{
		"bosch", "continental", "denso", "delphi", "valeo", "zf",
		"magna", "aptiv", "visteon", "harman", "lear", "faurecia",
	}
	automotiveContext = []string{"vehicle", "car", "automotive", "ecu", "can", "bus"}
)

// Entities extracts entity candidates from chunk text. Output order
// follows match order per type, so repeated runs agree.
func (p *PatternExtractor) Entities(text string) []domain.Entity {
	var out []domain.Entity

	for _, re := range componentRes {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			name := strings.TrimSpace(text[m[2]:m[3]])
			if len(name) <= 2 {
				continue
			}
			out = append(out, domain.Entity{
				Type:       domain.EntityComponent,
				Name:       name,
				Confidence: scoreKeywords(name, contextWindow(text, m[0], m[1]), componentKeywords, 0.6),
				Method:     domain.MethodPattern,
			})
		}
	}

	for _, re := range systemRes {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			name := strings.TrimSpace(text[m[2]:m[3]])
			if len(name) <= 1 {
				continue
			}
			out = append(out, domain.Entity{
				Type:       domain.EntitySystem,
				Name:       name,
				Confidence: scoreKeywords(name, "", systemKeywords, 0.7),
				Method:     domain.MethodPattern,
			})
		}
	}

	for _, re := range supplierRes {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			name := strings.TrimSpace(text[m[2]:m[3]])
			if len(name) <= 2 {
				continue
			}
			out = append(out, domain.Entity{
				Type:       domain.EntitySupplier,
				Name:       name,
				Confidence: scoreSupplier(name),
				Method:     domain.MethodPattern,
			})
		}
	}

	for _, m := range dtcRe.FindAllStringSubmatch(text, -1) {
		code := strings.ToUpper(m[1])
		out = append(out, domain.Entity{
			Type:       domain.EntityDiagnosticCode,
			Name:       code,
			Value:      domain.DTCCategory(code),
			Confidence: 1.0,
			Method:     domain.MethodPattern,
		})
	}

	for _, m := range versionRe.FindAllStringSubmatch(text, -1) {
		version := m[1]
		if version == "" {
			version = m[2]
		}
		out = append(out, domain.Entity{
			Type:       domain.EntitySoftwareVersion,
			Name:       strings.TrimPrefix(version, "v"),
			Confidence: 1.0,
			Method:     domain.MethodPattern,
		})
	}

	for _, m := range vinRe.FindAllStringSubmatch(text, -1) {
		out = append(out, domain.Entity{
			Type:       domain.EntityVINPattern,
			Name:       m[1],
			Confidence: 1.0,
			Method:     domain.MethodPattern,
		})
	}

	return out
}

type relationPattern struct {
	re       *regexp.Regexp
	relType  domain.RelationType
	reversed bool
}

// Version names carry dots, so the supersedes/update patterns allow them
// in endpoints; the structural patterns stay on plain word runs so a
// greedy capture cannot cross a sentence boundary.
var relationPatterns = []relationPattern{
	{re: regexp.MustCompile(`(?i)(\w+(?:\s+\w+)*?)\s+(?:depends on|requires|needs|relies on)\s+(\w+(?:\s+\w+)*)`), relType: domain.RelationDependsOn},
	{re: regexp.MustCompile(`(?i)without\s+(\w+(?:\s+\w+)*?),?\s+(\w+(?:\s+\w+)*?)\s+(?:cannot|will not|fails)`), relType: domain.RelationDependsOn, reversed: true},
	{re: regexp.MustCompile(`(?i)(\w+(?:\s+\w+)*?)\s+(?:is part of|belongs to)\s+(\w+(?:\s+\w+)*)`), relType: domain.RelationPartOf},
	{re: regexp.MustCompile(`(?i)(\w+(?:\s+\w+)*?)\s+(?:component|module|subsystem)\s+of\s+(\w+(?:\s+\w+)*)`), relType: domain.RelationPartOf},
	{re: regexp.MustCompile(`(?i)(\w+(?:\s+\w+)*?)\s+(?:communicates with|sends data to|receives data from)\s+(\w+(?:\s+\w+)*)`), relType: domain.RelationCommunicatesWith},
	{re: regexp.MustCompile(`(?i)([\w.]+(?:\s+[\w.]+)*?)\s+(?:supersedes|replaces|deprecates)\s+([\w.]+(?:\s+[\w.]+)*)`), relType: domain.RelationSupersedes},
	{re: regexp.MustCompile(`(?i)([\w.]+(?:\s+[\w.]+)*?)\s+(?:is|was)\s+affected by\s+(?:update|release)\s+([\w.]+(?:\s+[\w.]+)*)`), relType: domain.RelationAffectedByUpdate},
	{re: regexp.MustCompile(`(?i)update\s+([\w.]+(?:\s+[\w.]+)*?)\s+(?:affects|impacts|changes)\s+([\w.]+(?:\s+[\w.]+)*)`), relType: domain.RelationAffectedByUpdate, reversed: true},
}

// Relationships extracts edge candidates from text. Both endpoints must
// resolve to an already-extracted entity; the phrase alone is not enough
// evidence to invent a node. Endpoint types come from the resolved
// entities.
func (p *PatternExtractor) Relationships(text string, entities []domain.Entity) []domain.Relationship {
	byName := make(map[string]domain.Entity, len(entities))
	for _, entity := range entities {
		key := strings.ToLower(entity.Name)
		if existing, ok := byName[key]; !ok || entity.Confidence > existing.Confidence {
			byName[key] = entity
		}
	}

	resolve := func(raw string) (domain.Entity, bool) {
		raw = strings.Trim(strings.ToLower(raw), " .,;:")
		if entity, ok := byName[raw]; ok {
			return entity, true
		}
		// Phrase captures are greedy on word runs; try dropping leading
		// words so "the Camera Module" resolves to "Camera Module",
		// then trailing words for captures that ran past the name.
		words := strings.Fields(raw)
		for i := 1; i < len(words); i++ {
			if entity, ok := byName[strings.Join(words[i:], " ")]; ok {
				return entity, true
			}
		}
		for i := len(words) - 1; i >= 1; i-- {
			if entity, ok := byName[strings.Join(words[:i], " ")]; ok {
				return entity, true
			}
		}
		return domain.Entity{}, false
	}

	var out []domain.Relationship
	for _, rp := range relationPatterns {
		for _, m := range rp.re.FindAllStringSubmatch(text, -1) {
			source, target := m[1], m[2]
			if rp.reversed {
				source, target = target, source
			}
			sourceEntity, ok := resolve(source)
			if !ok {
				continue
			}
			targetEntity, ok := resolve(target)
			if !ok {
				continue
			}
			out = append(out, domain.Relationship{
				Type:       rp.relType,
				SourceName: sourceEntity.Name,
				SourceType: sourceEntity.Type,
				TargetName: targetEntity.Name,
				TargetType: targetEntity.Type,
				Confidence: 0.8,
			})
		}
	}
	return out
}

func contextWindow(text string, start, end int) string {
	const window = 100
	from := start - window
	if from < 0 {
		from = 0
	}
	to := end + window
	if to > len(text) {
		to = len(text)
	}
	return text[from:to]
}

// scoreKeywords starts from a base confidence and adds evidence boosts:
// a known keyword in the name, and automotive wording near the match.
func scoreKeywords(name, context string, keywords []string, base float64) float64 {
	confidence := base
	nameLower := strings.ToLower(name)
	for _, keyword := range keywords {
		if strings.Contains(nameLower, keyword) {
			confidence += 0.2
			break
		}
	}
	if context != "" {
		contextLower := strings.ToLower(context)
		for _, term := range automotiveContext {
			if strings.Contains(contextLower, term) {
				confidence += 0.1
				break
			}
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func scoreSupplier(name string) float64 {
	confidence := 0.6
	nameLower := strings.ToLower(name)
	for _, keyword := range supplierKeywords {
		if strings.Contains(nameLower, keyword) {
			confidence += 0.3
			break
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
