package api

// CreateProjectRequest registers a git repository as a project.
type CreateProjectRequest struct {
	Path         string `json:"path" binding:"required"`
	DefaultModel string `json:"default_model,omitempty"`
}

// UpdateProjectRequest changes the fields that are set.
type UpdateProjectRequest struct {
	Name         *string `json:"name"`
	DefaultModel *string `json:"default_model"`
}

// CreateSessionRequest starts a session with an initial prompt.
type CreateSessionRequest struct {
	Name    string `json:"name" binding:"required"`
	Message string `json:"message" binding:"required"`
	Model   string `json:"model,omitempty"`
}

type MergeRequest struct {
	Message string `json:"message" binding:"required"`
}

type CreateRunScriptRequest struct {
	Name    string `json:"name" binding:"required"`
	Command string `json:"command" binding:"required"`
}

type UpdateRunScriptRequest struct {
	Name    *string `json:"name"`
	Command *string `json:"command"`
}

type CreatePromptHistoryRequest struct {
	PromptText string `json:"prompt_text" binding:"required"`
}
