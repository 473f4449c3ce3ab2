package secondary

import "context"

// ContentGenerator defines the secondary port for the content-generation service.
type ContentGenerator interface {
	// Generate produces text for a prompt. Implementations enforce their own timeout.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest contains the prompt sent to the generator.
type GenerateRequest struct {
	System string
	Prompt string
}

// GenerateResponse contains generated text and its token usage.
type GenerateResponse struct {
	Text   string
	Tokens int
}

// SearchClient defines the secondary port for web-search augmentation.
type SearchClient interface {
	// Search runs one query with its own bounded internal retry.
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is one search query.
type SearchRequest struct {
	Query  string
	Intent string
}

// SearchResponse is the answer of a search query.
type SearchResponse struct {
	Content   string
	Citations []string
}

// Notifier defines the secondary port for milestone notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notification is a phase or session milestone.
type Notification struct {
	Event     string
	SessionID string
	Phase     int
	Message   string
}

// StepTrigger defines the secondary port used to start a step for a session.
type StepTrigger interface {
	TriggerStep(ctx context.Context, sessionID string, phase int, step string) error
}

// Resumer is signalled once a session's queued work has fully resolved.
type Resumer interface {
	ResumeSession(ctx context.Context, sessionID string) error
}
