package models

// AnalysisResult is the response body of a successful analysis.
type AnalysisResult struct {
	IsCar            bool             `json:"isCar"`
	IsDamaged        bool             `json:"isDamaged"`
	DamageConfidence float64          `json:"damageConfidence"`
	DamageLocations  []DamageLocation `json:"damageLocations"`
	DamageSeverity   DamageSeverity   `json:"damageSeverity"`
	PlottedImage     string           `json:"plottedImage"`
}

type DamageLocation struct {
	Location   string  `json:"location"`
	Confidence float64 `json:"confidence"`
}

type DamageSeverity struct {
	SeverityLabel      string  `json:"severityLabel"`
	SeverityConfidence float64 `json:"severityConfidence"`
}

const (
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
)

// ImagePayload is a submitted image as received from the client.
type ImagePayload struct {
	Data        []byte
	ContentType string
	Filename    string
}
