package dto

// ClassifyRequest is the payload sent to the external classifier.
type ClassifyRequest struct {
	Sender   string         `json:"sender"`
	Subject  string         `json:"subject"`
	BodyText string         `json:"bodyText"`
	BodyHTML string         `json:"bodyHtml"`
	Files    []EvidenceFile `json:"files,omitempty"`
	Model    string         `json:"model,omitempty"`
}

// EvidenceFile is one inlined attachment or image handed to the classifier.
type EvidenceFile struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	// Base64 standard encoding.
	Data string `json:"data"`
}

// PaymentInfo is the structured classifier verdict for one message.
type PaymentInfo struct {
	IsPayment   bool     `json:"isPayment"`
	Amount      *float64 `json:"amount,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Merchant    string   `json:"merchant,omitempty"`
	PaymentDate string   `json:"paymentDate,omitempty"` // YYYY-MM-DD
	CardType    string   `json:"cardType,omitempty"`
	PaymentType string   `json:"paymentType,omitempty"`
	Category    string   `json:"category,omitempty"`
	Summary     string   `json:"summary"`
}

// ClassifyResponse is the classifier's wire response.
type ClassifyResponse struct {
	Payment PaymentInfo `json:"payment"`
	// Raw JSON body as received, retained on the persisted record.
	Raw map[string]interface{} `json:"-"`
}
