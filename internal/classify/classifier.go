// Package classify scores tenders and items for medical-supply relevance.
// Everything in this package is pure computation: no I/O, no shared state,
// deterministic for a given input.
package classify

import (
	"fmt"
	"strings"

	"github.com/fernandes-group/tenderscan/internal/model"
)

// CacheLookup resolves an organization against the reputation cache.
// ok is false on a true cache miss; callers must not read a miss as
// "non-medical".
type CacheLookup func(orgID string) (isMedical bool, confidence float64, ok bool)

// QuickScore is the Stage 2 zero-call heuristic. It returns a 0-100
// admission score, a reject flag meaning definitively non-medical, and
// whether the verdict came from the cache. The cache verdict, when present,
// short-circuits everything else; a reject with fromCache false is a fresh
// heuristic verdict the caller should feed back into the cache.
func QuickScore(t *model.Tender, lookup CacheLookup) (score int, reject, fromCache bool) {
	if lookup != nil && t.OrgID != "" {
		if isMedical, confidence, ok := lookup(t.OrgID); ok {
			if isMedical {
				return int(confidence), false, true
			}
			return 0, true, true
		}
	}

	orgName := Fold(t.OrgName)
	object := Fold(t.Title + " " + t.Description)

	// A rejection keyword in the org name is decisive; the free text needs
	// two hits before we give up on it.
	for _, kw := range rejectionKeywords {
		if strings.Contains(orgName, kw) {
			return 0, true, false
		}
	}
	rejections := 0
	for _, kw := range rejectionKeywords {
		if strings.Contains(object, kw) {
			rejections++
			if rejections >= 2 {
				return 0, true, false
			}
		}
	}

	for kw, points := range orgKeywordWeights {
		if strings.Contains(orgName, kw) {
			score += points
		}
	}
	for kw, points := range objectKeywordWeights {
		if strings.Contains(object, kw) {
			score += points
		}
	}

	// Larger purchases are more likely to be equipment buys.
	switch value := t.Value(); {
	case value > 100_000:
		score += 15
	case value > 50_000:
		score += 10
	}

	// Pregão Eletrônico and Dispensa carry most medical-supply volume.
	if t.ModalityID == 6 || t.ModalityID == 8 {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score, false, false
}

// StrongKeywordCount counts strong medical keywords in free text. Used by
// Stage 3 phase 1 auto-approval.
func StrongKeywordCount(text string) int {
	if text == "" {
		return 0
	}
	folded := Fold(text)
	n := 0
	for _, kw := range strongKeywords {
		if strings.Contains(folded, kw) {
			n++
		}
	}
	return n
}

// SampleConfidence scores a sampled item set 0-100. Each item contributes up
// to two indicator points: two for a medical CATMAT code, one for a keyword
// match; the denominator is two checks per item.
func SampleConfidence(items []model.Item) float64 {
	if len(items) == 0 {
		return 0
	}

	indicators := 0
	for _, item := range items {
		for _, code := range ExtractCatmatCodes(item.Description) {
			if IsMedicalCatmat(code) {
				indicators += 2
				break
			}
		}
		folded := Fold(item.Description)
		for _, kw := range sampleItemKeywords {
			if strings.Contains(folded, kw) {
				indicators++
				break
			}
		}
	}

	return float64(indicators) / float64(2*len(items)) * 100
}

// keywordScore returns the fraction of keywords present, scaled to 0-100,
// plus the matched keywords.
func keywordScore(folded string, keywords []string) (float64, []string) {
	if folded == "" {
		return 0, nil
	}
	var found []string
	for _, kw := range keywords {
		if strings.Contains(folded, kw) {
			found = append(found, kw)
		}
	}
	score := float64(len(found)) / float64(len(keywords)) * 100
	if score > 100 {
		score = 100
	}
	return score, found
}

// classifyGovernmentLevel infers the government tier from org name and text.
func classifyGovernmentLevel(t *model.Tender, folded string) (model.GovernmentLevel, float64, string) {
	federalScore, federalKw := keywordScore(folded, federalKeywords)
	stateScore, stateKw := keywordScore(folded, stateKeywords)
	municipalScore, municipalKw := keywordScore(folded, municipalKeywords)

	// Federal CNPJ roots cluster under a few prefixes.
	normalized := digitsOnly(t.OrgID)
	if len(normalized) >= 14 {
		switch normalized[:2] {
		case "26", "00", "34":
			federalScore += 20
		}
	}

	maxScore := max(federalScore, max(stateScore, municipalScore))
	if maxScore < 10 {
		return model.GovUnknown, maxScore, "insufficient keywords to determine government level"
	}

	switch maxScore {
	case federalScore:
		return model.GovFederal, min(maxScore, 95), fmt.Sprintf("federal keywords: %v", head(federalKw, 3))
	case stateScore:
		return model.GovState, min(maxScore, 95), fmt.Sprintf("state keywords: %v", head(stateKw, 3))
	default:
		return model.GovMunicipal, min(maxScore, 95), fmt.Sprintf("municipal keywords: %v", head(municipalKw, 3))
	}
}

// classifyOrgType infers the organization type from org name and text.
func classifyOrgType(folded string) (model.OrgType, float64, string) {
	type candidate struct {
		orgType model.OrgType
		score   float64
		found   []string
	}
	candidates := make([]candidate, 0, 4)
	for _, c := range []struct {
		orgType  model.OrgType
		keywords []string
	}{
		{model.OrgHospital, hospitalKeywords},
		{model.OrgHealthSecretariat, healthSecretariatKeywords},
		{model.OrgUniversity, universityKeywords},
		{model.OrgMilitary, militaryKeywords},
	} {
		score, found := keywordScore(folded, c.keywords)
		candidates = append(candidates, candidate{c.orgType, score, found})
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}
	if best.score < 10 {
		return model.OrgOther, best.score, "no specific organization type keywords found"
	}
	return best.orgType, min(best.score, 90), fmt.Sprintf("keywords found: %v", head(best.found, 3))
}

// assessMedicalRelevance combines CATMAT codes (authoritative when present)
// with weighted keyword scores.
func assessMedicalRelevance(text string) (bool, float64, []string, []string, string) {
	codes := ExtractCatmatCodes(text)
	var medicalCodes []string
	for _, code := range codes {
		if IsMedicalCatmat(code) {
			medicalCodes = append(medicalCodes, code)
		}
	}
	if len(medicalCodes) > 0 {
		var labels []string
		for _, code := range medicalCodes {
			if desc := CatmatCategory(code); desc != "" {
				labels = append(labels, code+"="+desc)
			} else {
				labels = append(labels, code)
			}
		}
		return true, 95, nil, medicalCodes, "medical CATMAT codes found: " + strings.Join(labels, ", ")
	}

	folded := Fold(text)
	medicalScore, medicalFound := keywordScore(folded, medicalKeywords)
	highRelScore, highRelFound := keywordScore(folded, highRelevanceKeywords)

	combined := medicalScore*0.6 + highRelScore*0.4
	relevant := combined >= 15 || highRelScore >= 10

	found := append(medicalFound, highRelFound...)
	reasoning := "no significant medical keywords found"
	if len(found) > 0 {
		reasoning = fmt.Sprintf("medical keywords: %v", head(dedupe(found), 5))
	}
	return relevant, combined, dedupe(found), codes, reasoning
}

// Classify produces the full Stage 4 verdict for a tender.
func Classify(t *model.Tender) model.Classification {
	combined := Fold(t.OrgName + " " + t.Title + " " + t.Description)

	govLevel, govConf, govReason := classifyGovernmentLevel(t, combined)
	orgType, orgConf, orgReason := classifyOrgType(combined)

	itemText := ""
	for _, item := range t.Annotation.SampleItems {
		itemText += " " + item.Description
	}
	isMedical, medicalScore, keywords, codes, medicalReason := assessMedicalRelevance(
		t.Title + " " + t.Description + itemText)

	var isMaterial *bool
	if len(t.Annotation.SampleItems) > 0 {
		material := false
		for _, item := range t.Annotation.SampleItems {
			if item.MaterialOrService == "M" {
				material = true
				break
			}
		}
		isMaterial = &material
	}

	return model.Classification{
		GovernmentLevel:   govLevel,
		GovConfidence:     govConf,
		OrgType:           orgType,
		OrgTypeConfidence: orgConf,
		Size:              model.SizeOf(t.Value()),
		IsMedical:         isMedical,
		MedicalScore:      medicalScore,
		KeywordsFound:     keywords,
		CatmatCodes:       codes,
		IsMaterial:        isMaterial,
		Reasoning: strings.Join([]string{
			"gov level: " + govReason,
			"org type: " + orgReason,
			"medical: " + medicalReason,
		}, "; "),
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func head(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func dedupe(s []string) []string {
	seen := make(map[string]struct{}, len(s))
	var out []string
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
