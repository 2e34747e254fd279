package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Config Errors (E100-E119)
	// ============================================

	"E100": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Detail:     "The configuration file does not exist or cannot be read.",
		Suggestion: "Create casta.json or pass --config with the right path.",
	},
	"E101": {
		Category:   CategoryConfig,
		Message:    "Invalid config JSON",
		Detail:     "The configuration file is not valid JSON.",
		Suggestion: "Check for trailing commas and unquoted keys.",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Durations are strings such as \"5s\" or \"1m30s\".",
	},
	"E103": {
		Category:   CategoryConfig,
		Message:    "Invalid heartbeat timing",
		Detail:     "The client timeout must be at least twice the heartbeat interval.",
		Suggestion: "Keep the defaults of 5s and 10s unless the viewers are changed too.",
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Invalid listen address",
		Detail:   "The server address must be host:port.",
	},
	"E105": {
		Category:   CategoryConfig,
		Message:    "Invalid log level",
		Suggestion: "Use one of debug, info, warn, error.",
	},
	"E106": {
		Category:   CategoryConfig,
		Message:    "Invalid log format",
		Suggestion: "Use text or json.",
	},
	"E107": {
		Category: CategoryConfig,
		Message:  "Invalid size limit",
		Detail:   "Buffer sizes and message limits must not be negative.",
	},

	// ============================================
	// Server Errors (E120-E139)
	// ============================================

	"E120": {
		Category:   CategoryServer,
		Message:    "Cannot listen on address",
		Suggestion: "Check that no other process uses the port.",
	},
	"E121": {
		Category: CategoryServer,
		Message:  "Shutdown timed out",
		Detail:   "Some sessions did not finish before the shutdown timeout.",
	},

	// ============================================
	// CLI Errors (E140-E159)
	// ============================================

	"E140": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
	},
	"E141": {
		Category:   CategoryCLI,
		Message:    "Config file already exists",
		Suggestion: "Pass --force to overwrite it.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
