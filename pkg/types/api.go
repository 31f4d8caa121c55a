package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Always false for errors.
	Success bool `json:"success"`
	// Human readable message.
	// example: model not loaded
	Message string `json:"message" example:"model not loaded"`
	// Error classification.
	// example: NotLoaded
	Error string `json:"error" example:"model_not_loaded"`
	// HTTP status code.
	// example: 409
	Code int `json:"code" example:"409"`
	// Optional remediation hint.
	// example: load the model with optimization_mode=minimal
	Hint string `json:"hint,omitempty" example:"load the model with optimization_mode=minimal"`
}

// StatusResponse reports the model lifecycle state for /api/status.
type StatusResponse struct {
	// True when a model handle is loaded.
	ModelLoaded bool `json:"model_loaded" example:"true"`
	// Lifecycle state: unloaded, loading or loaded.
	// example: loaded
	State string `json:"state" example:"loaded"`
	// Resource profile of the loaded handle.
	// example: balanced
	Profile string `json:"profile,omitempty" example:"balanced"`
	// True when the minimal profile fell back to balanced optimizations.
	Degraded bool `json:"degraded,omitempty"`
	// Path of the loaded (or loading) model.
	// example: models/Z-Image-Turbo
	ModelPath string `json:"model_path,omitempty" example:"models/Z-Image-Turbo"`
	// Unix seconds when the handle became ready.
	// example: 1760600000
	LoadedAt int64 `json:"loaded_at_unix,omitempty" example:"1760600000"`
	// Duration of the last successful load in seconds.
	// example: 42.5
	LoadSeconds float64 `json:"load_seconds,omitempty" example:"42.5"`
	// Error of the last failed load, if any.
	LastError string `json:"last_error,omitempty"`
	// Number of non-terminal jobs.
	// example: 1
	ActiveJobs int `json:"active_jobs" example:"1"`
}

// ConfigResponse exposes form defaults for /api/config.
type ConfigResponse struct {
	// example: 1024
	DefaultWidth int `json:"default_width" example:"1024"`
	// example: 1024
	DefaultHeight int `json:"default_height" example:"1024"`
	// example: 9
	DefaultSteps int `json:"default_steps" example:"9"`
	// example: generated_image.png
	DefaultFilename string `json:"default_filename" example:"generated_image.png"`
	// example: balanced
	DefaultOptimizationMode string `json:"default_optimization_mode" example:"balanced"`
	// example: models/Z-Image-Turbo
	ModelPath string `json:"model_path" example:"models/Z-Image-Turbo"`
	// True when a chat API key is configured for prompt rewriting.
	RewriteRemote bool `json:"rewrite_remote"`
}

// LoadRequest asks the daemon to load a model.
type LoadRequest struct {
	// Resource profile: balanced (alias basic) or minimal (aliases low_vram, offload).
	// example: balanced
	OptimizationMode string `json:"optimization_mode,omitempty" example:"balanced"`
	// Model folder path or registry id; the configured default is used when empty.
	// example: models/Z-Image-Turbo
	ModelPath string `json:"model_path,omitempty" example:"models/Z-Image-Turbo"`
	// When true the load runs in the background and the call returns 202.
	Async bool `json:"async,omitempty"`
}

// LoadResponse is returned by /api/load-model.
type LoadResponse struct {
	Success bool `json:"success"`
	// example: model loaded in 41.20s (balanced)
	Message string `json:"message" example:"model loaded in 41.20s (balanced)"`
	// example: balanced
	Profile string `json:"profile,omitempty" example:"balanced"`
	// True when the minimal profile fell back to balanced optimizations.
	Degraded bool `json:"degraded,omitempty"`
	// True when the call was a no-op because a model was already loaded.
	AlreadyLoaded bool `json:"already_loaded,omitempty"`
}

// UnloadResponse is returned by /api/unload-model.
type UnloadResponse struct {
	Success bool `json:"success"`
	// example: model unloaded
	Message string `json:"message" example:"model unloaded"`
}

// PromptHints are optional free-text fields used by prompt rewriting.
type PromptHints struct {
	// example: watercolor
	ArtStyle string `json:"art_style,omitempty" example:"watercolor"`
	// example: a young red fox
	Character string `json:"character_description,omitempty" example:"a young red fox"`
	// example: sitting, looking back
	Pose string `json:"pose_description,omitempty" example:"sitting, looking back"`
	// example: snowy birch forest
	Background string `json:"background_description,omitempty" example:"snowy birch forest"`
	Clothing string `json:"clothing_description,omitempty"`
	// example: golden hour
	Lighting string `json:"lighting_description,omitempty" example:"golden hour"`
	// example: rule of thirds
	Composition string `json:"composition_description,omitempty" example:"rule of thirds"`
	Details     string `json:"additional_details,omitempty"`
}

// RewriteRequest is the payload of /api/optimize-prompt.
type RewriteRequest struct {
	// example: a red fox
	Prompt string `json:"prompt" example:"a red fox"`
	PromptHints
}

// RewriteResponse carries the rewritten prompt.
type RewriteResponse struct {
	Success bool `json:"success"`
	// example: a red fox
	OriginalPrompt string `json:"original_prompt" example:"a red fox"`
	// example: A young red fox sitting in a snowy birch forest, watercolor, golden hour light
	OptimizedPrompt string `json:"optimized_prompt" example:"A young red fox sitting in a snowy birch forest, watercolor, golden hour light"`
	// Which backend produced the prompt: remote, llama or local.
	// example: remote
	Source string `json:"source" example:"remote"`
}

// GenerateRequest submits a generation job. Numeric fields fall back to the
// configured defaults when omitted.
type GenerateRequest struct {
	// example: a red fox
	Prompt string `json:"prompt" example:"a red fox"`
	// example: 1024
	Width *int `json:"width,omitempty" example:"1024"`
	// example: 1024
	Height *int `json:"height,omitempty" example:"1024"`
	// example: 9
	Steps *int `json:"steps,omitempty" example:"9"`
	// example: fox.png
	Filename string `json:"filename,omitempty" example:"fox.png"`
	// Rewrite the prompt before generation.
	OptimizePrompt bool `json:"optimize_prompt,omitempty"`
	// Profile to use if a reload is needed.
	// example: balanced
	OptimizationMode string `json:"optimization_mode,omitempty" example:"balanced"`
	PromptHints
}

// GenerateResponse returns the id of the submitted job.
type GenerateResponse struct {
	Success bool `json:"success"`
	// example: 6f1c1f7e-3f0c-4a53-9f7a-2d1f5b0f2c11
	TaskID string `json:"task_id" example:"6f1c1f7e-3f0c-4a53-9f7a-2d1f5b0f2c11"`
	// example: generation started
	Message string `json:"message" example:"generation started"`
	// Advisory warning, e.g. high resolution under the balanced profile.
	Warning string `json:"warning,omitempty"`
}

// ProgressResponse is a snapshot of a job record.
type ProgressResponse struct {
	Success bool `json:"success"`
	// example: 6f1c1f7e-3f0c-4a53-9f7a-2d1f5b0f2c11
	TaskID string `json:"task_id" example:"6f1c1f7e-3f0c-4a53-9f7a-2d1f5b0f2c11"`
	// pending, running, succeeded or failed.
	// example: running
	Status string `json:"status" example:"running"`
	// example: 46
	Progress int `json:"progress" example:"46"`
	// example: generating: 4/9 steps
	Stage string `json:"stage" example:"generating: 4/9 steps"`
	// URL path of the image once succeeded.
	// example: /gallery/fox/fox.png
	ImageURL string `json:"image_url,omitempty" example:"/gallery/fox/fox.png"`
	// Folder of the artifact relative to the gallery root.
	// example: fox
	Folder string `json:"folder,omitempty" example:"fox"`
	// Error message once failed.
	Message string `json:"message,omitempty"`
	// Error classification once failed.
	// example: OutOfMemory
	Error string `json:"error,omitempty" example:"out_of_memory"`
	// Remediation hint once failed.
	Hint string `json:"hint,omitempty"`
	// Effective prompt, known after the preparing stage.
	// example: a red fox
	Prompt string `json:"prompt,omitempty" example:"a red fox"`
	// Generation time in seconds once succeeded.
	// example: 12.4
	ElapsedSeconds float64 `json:"elapsed_seconds,omitempty" example:"12.4"`
	// example: 1760600000
	CreatedAt int64 `json:"created_at_unix" example:"1760600000"`
}

// JobsResponse lists known jobs newest first.
type JobsResponse struct {
	Jobs []ProgressResponse `json:"jobs"`
}

// ModelsResponse wraps the list of models returned by GET /api/models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// GalleryResponse lists gallery artifacts newest first.
type GalleryResponse struct {
	Images []GalleryItem `json:"images"`
}

// DeleteRequest removes one gallery folder.
type DeleteRequest struct {
	// example: fox_20261016_101500
	FolderName string `json:"folder_name" example:"fox_20261016_101500"`
}

// DeleteResponse reports the outcome of a gallery deletion.
type DeleteResponse struct {
	Success bool `json:"success"`
	// example: deleted fox_20261016_101500
	Message string `json:"message" example:"deleted fox_20261016_101500"`
}
