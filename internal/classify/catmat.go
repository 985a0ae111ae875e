package classify

import (
	"regexp"
	"sort"
)

// CATMAT group 65 covers medical, dental and veterinary equipment in the
// Brazilian federal supply classification. Any code under it is a strong
// medical signal independent of keyword matching.
var catmatGroups = map[string]string{
	"65":   "Medical, Dental & Veterinary Equipment (All)",
	"6505": "Drugs and Biologicals",
	"6510": "Surgical Dressing Materials",
	"6515": "Medical & Surgical Instruments, Equipment, and Supplies",
	"6520": "Dental Instruments, Equipment, and Supplies",
	"6525": "X-Ray Equipment and Supplies",
	"6530": "Hospital Furniture, Equipment, Utensils, and Supplies",
	"6532": "Hospital and Surgical Clothing",
	"6540": "Ophthalmic Instruments, Equipment, and Supplies",
	"6545": "Medical Sets, Kits, and Outfits",
}

var catmatSubcategories = map[string]string{
	"651510": "Surgical Dressings",
	"651515": "Adhesive Tapes, Surgical and Medical",
	"651520": "Bandages and Gauze",
	"651525": "Wound Care Supplies",
	"651530": "IV Products and Catheters",
	"651535": "Syringes and Needles",
	"651540": "Medical Tubing and Accessories",
	"653205": "Surgical Gowns, Masks, and Drapes",
	"653210": "Surgical Gloves and Protective Equipment",
}

// Code extraction patterns. Inputs are folded first, so the label
// alternatives are matched without diacritics.
var (
	catmatExplicitRe = regexp.MustCompile(`catmat[\s:]*(\d{4,8})`)
	catmatBRRe       = regexp.MustCompile(`br\s*(\d{7,})`)
	catmatLabelRe    = regexp.MustCompile(`(?:codigo|class[ef]|classificacao)[\s:]*(\d{4,8})`)
	catmatBareRe     = regexp.MustCompile(`\b(65\d{2,6})\b`)
)

// ExtractCatmatCodes pulls CATMAT-style codes out of free text. Returns the
// unique codes sorted ascending.
func ExtractCatmatCodes(text string) []string {
	if text == "" {
		return nil
	}
	folded := Fold(text)

	seen := make(map[string]struct{})
	for _, re := range []*regexp.Regexp{catmatExplicitRe, catmatBRRe, catmatLabelRe, catmatBareRe} {
		for _, m := range re.FindAllStringSubmatch(folded, -1) {
			seen[m[1]] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	codes := make([]string, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// IsMedicalCatmat reports whether a code belongs to the medical group 65.
func IsMedicalCatmat(code string) bool {
	return len(code) >= 2 && code[:2] == "65"
}

// CatmatCategory returns the category description for a code, trying exact
// then prefix matches. Empty string when the code is unknown.
func CatmatCategory(code string) string {
	if code == "" {
		return ""
	}
	if desc, ok := catmatSubcategories[code]; ok {
		return desc
	}
	if desc, ok := catmatGroups[code]; ok {
		return desc
	}
	for _, n := range []int{6, 4, 2} {
		if len(code) < n {
			continue
		}
		prefix := code[:n]
		if desc, ok := catmatSubcategories[prefix]; ok {
			return desc
		}
		if desc, ok := catmatGroups[prefix]; ok {
			return desc
		}
	}
	return ""
}
