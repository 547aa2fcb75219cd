package model

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
}

type PatientProfile struct {
	Age    string `json:"age,omitempty"`
	Gender string `json:"gender,omitempty"`
	Height string `json:"height,omitempty"`
	Weight string `json:"weight,omitempty"`
}

type DiagnosisRequest struct {
	Symptoms  []string        `json:"symptoms,omitempty"`
	ImageData string          `json:"image_data,omitempty"`
	ImageMIME string          `json:"image_mime_type,omitempty"`
	Language  string          `json:"language,omitempty"`
	Profile   *PatientProfile `json:"profile,omitempty"`
}

type DiagnosisResponse struct {
	Condition string `json:"condition"`
	Severity  int    `json:"severity"`
	Reasoning string `json:"reasoning"`
	Language  string `json:"language"`
}

type TranscriptionRequest struct {
	AudioData string `json:"audio_data"`
	MIMEType  string `json:"mime_type"`
}

type TranscriptionResponse struct {
	SymptomsText string `json:"symptoms_text"`
	Language     string `json:"language"`
}

type WaitTimeFacility struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
}

type WaitTimeRequest struct {
	Facilities []WaitTimeFacility `json:"facilities"`
}

type WaitTimeEstimate struct {
	Name              string `json:"name"`
	Website           string `json:"website,omitempty"`
	WaitTime          int    `json:"waitTime"`
	WaitTimeEstimated bool   `json:"waitTimeEstimated"`
}

type WaitTimeResponse struct {
	Facilities []WaitTimeEstimate `json:"facilities"`
}
