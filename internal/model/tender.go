// Package model defines the core domain types shared across the discovery
// pipeline: tenders, items, and classification results.
package model

import "time"

// Tender is one procurement listing pulled from the PNCP registry.
// Identity fields are immutable after fetch; stage verdicts accumulate in
// Annotation and are additive: a later stage may raise confidence but never
// erases an earlier verdict.
type Tender struct {
	ControlNumber  string  `json:"control_number"`
	OrgID          string  `json:"org_id"` // CNPJ, may carry punctuation as received
	OrgName        string  `json:"org_name"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	EstimatedValue float64 `json:"estimated_value"`
	AwardedValue   float64 `json:"awarded_value"`
	ModalityID     int     `json:"modality_id"`
	ModalityName   string  `json:"modality_name"`
	Year           int     `json:"year"`
	Sequence       int     `json:"sequence"`
	State          string  `json:"state"`
	City           string  `json:"city"`
	PublishedAt    time.Time `json:"published_at"`

	Annotation Annotation `json:"annotation"`
}

// Annotation holds the mutable stage verdicts attached to a tender as it
// moves through the pipeline.
type Annotation struct {
	Score          int             `json:"score"`
	Confidence     float64         `json:"confidence"`
	ApprovalReason string          `json:"approval_reason,omitempty"`
	AutoApproved   bool            `json:"auto_approved,omitempty"`
	SampleItems    []Item          `json:"sample_items,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
}

// Value returns the authoritative monetary value: the awarded amount when the
// tender is finalized, otherwise the pre-award estimate.
func (t *Tender) Value() float64 {
	if t.AwardedValue > 0 {
		return t.AwardedValue
	}
	return t.EstimatedValue
}

// Item is one line item of a tender.
type Item struct {
	Number            int     `json:"number"`
	Description       string  `json:"description"`
	MaterialOrService string  `json:"material_or_service"` // "M" or "S"
	Quantity          float64 `json:"quantity"`
	UnitValue         float64 `json:"unit_value"`
}

// GovernmentLevel is the tier of government behind a tender.
type GovernmentLevel string

const (
	GovFederal   GovernmentLevel = "federal"
	GovState     GovernmentLevel = "state"
	GovMunicipal GovernmentLevel = "municipal"
	GovUnknown   GovernmentLevel = "unknown"
)

// OrgType categorizes the buying organization.
type OrgType string

const (
	OrgHospital          OrgType = "hospital"
	OrgHealthSecretariat OrgType = "health_secretariat"
	OrgUniversity        OrgType = "university"
	OrgMilitary          OrgType = "military"
	OrgOther             OrgType = "other"
)

// TenderSize buckets tenders by monetary value (BRL).
type TenderSize string

const (
	SizeSmall  TenderSize = "small"  // < 50k
	SizeMedium TenderSize = "medium" // 50k - 500k
	SizeLarge  TenderSize = "large"  // 500k - 5M
	SizeMega   TenderSize = "mega"   // > 5M
)

// SizeOf returns the size bucket for a value in BRL.
func SizeOf(value float64) TenderSize {
	switch {
	case value > 5_000_000:
		return SizeMega
	case value > 500_000:
		return SizeLarge
	case value >= 50_000:
		return SizeMedium
	default:
		return SizeSmall
	}
}

// Classification is the full Stage 4 verdict for a tender.
type Classification struct {
	GovernmentLevel    GovernmentLevel `json:"government_level"`
	GovConfidence      float64         `json:"gov_confidence"`
	OrgType            OrgType         `json:"org_type"`
	OrgTypeConfidence  float64         `json:"org_type_confidence"`
	Size               TenderSize      `json:"size"`
	IsMedical          bool            `json:"is_medical"`
	MedicalScore       float64         `json:"medical_score"`
	KeywordsFound      []string        `json:"keywords_found,omitempty"`
	CatmatCodes        []string        `json:"catmat_codes,omitempty"`
	IsMaterial         *bool           `json:"is_material,omitempty"`
	Reasoning          string          `json:"reasoning"`
}
