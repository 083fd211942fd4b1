package auth

// Scopes recognised by the API.
const (
	ScopeWorkoutsWrite  = "workouts:write"
	ScopeCreaturesWrite = "creatures:write"
	ScopeProfileRead    = "profile:read"
	ScopeSettingsWrite  = "settings:write"
)
