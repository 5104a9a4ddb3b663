package provider

// Keyframe anchors the generation at one end of the clip.
type Keyframe struct {
	Type string `json:"type"` // always "image"
	URL  string `json:"url"`
}

// Keyframes holds the start frame and, optionally, the end frame.
type Keyframes struct {
	Frame0 Keyframe  `json:"frame0"`
	Frame1 *Keyframe `json:"frame1,omitempty"`
}

// SubmitRequest is the generation job sent to the provider. Optional
// model parameters are filtered through the per-model whitelist before
// the request goes out.
type SubmitRequest struct {
	Prompt      string    `json:"prompt"`
	Model       string    `json:"model"`
	AspectRatio string    `json:"aspect_ratio,omitempty"`
	Loop        bool      `json:"loop,omitempty"`
	Keyframes   Keyframes `json:"keyframes"`
}

// Provider job states.
const (
	StateQueued     = "queued"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

type submitResponse struct {
	ID string `json:"id"`
}

// JobStatus is the provider's view of a running job.
type JobStatus struct {
	ID            string  `json:"id"`
	State         string  `json:"state"`
	Progress      *int    `json:"progress,omitempty"`
	Video         *Video  `json:"video,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
}

type Video struct {
	URL string `json:"url"`
}

// Terminal reports whether the provider will make no further progress.
func (s *JobStatus) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// modelParams whitelists the optional parameters each model accepts.
// Anything not listed is stripped before submission so a newer field
// never trips provider-side validation for an older model.
var modelParams = map[string]map[string]bool{
	"ray-2":       {"aspect_ratio": true, "loop": true},
	"ray-flash-2": {"aspect_ratio": true, "loop": true},
	"ray-1-6":     {"aspect_ratio": true},
}

// filterParams returns the wire payload for req with disallowed optional
// fields removed. Unknown models keep only the required fields.
func filterParams(req SubmitRequest) map[string]interface{} {
	payload := map[string]interface{}{
		"prompt":    req.Prompt,
		"model":     req.Model,
		"keyframes": req.Keyframes,
	}
	allowed := modelParams[req.Model]
	if allowed["aspect_ratio"] && req.AspectRatio != "" {
		payload["aspect_ratio"] = req.AspectRatio
	}
	if allowed["loop"] && req.Loop {
		payload["loop"] = true
	}
	return payload
}
