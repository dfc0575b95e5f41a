package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// State Errors (E001-E019)
	// ============================================

	"E001": {
		Category: CategoryState,
		Message:  "Cache key bound to a different type",
		Detail:   "The key was first bound with a different Go type. A key's type is fixed at first bind for the lifetime of the entry.",
	},
	"E002": {
		Category: CategoryState,
		Message:  "Update loop closed",
		Detail:   "A transition was dispatched to an update loop that has already been closed.",
	},

	// ============================================
	// Configuration Errors (E020-E039)
	// ============================================

	"E020": {
		Category: CategoryConfig,
		Message:  "No optimist.json found",
		Detail:   "The directory contains no optimist.json configuration file.",
	},
	"E021": {
		Category: CategoryConfig,
		Message:  "Invalid optimist.json",
		Detail:   "The optimist.json configuration file is malformed.",
	},
	"E022": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or malformed.",
	},
	"E023": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
	},

	// ============================================
	// Persistence Errors (E040-E059)
	// ============================================

	"E040": {
		Category: CategoryPersist,
		Message:  "Unknown persistence backend",
		Detail:   "The persist.backend value does not name a known snapshot backend.",
	},
	"E041": {
		Category: CategoryPersist,
		Message:  "Snapshot version mismatch",
		Detail:   "The stored snapshot was written with an incompatible format version.",
	},
	"E042": {
		Category: CategoryPersist,
		Message:  "Backend requires a database driver",
		Detail:   "SQL-backed snapshots need a driver, and the CLI links none. Open the database yourself and pass the *sql.DB through the library API.",
	},

	// ============================================
	// CLI Errors (E060-E079)
	// ============================================

	"E060": {
		Category: CategoryCLI,
		Message:  "Server failed to start",
		Detail:   "The HTTP listener could not be started. The address may already be in use.",
	},
	"E061": {
		Category: CategoryCLI,
		Message:  "Benchmark target unreachable",
		Detail:   "Could not connect to the target server.",
	},
	"E062": {
		Category: CategoryCLI,
		Message:  "Configuration file already exists",
		Detail:   "Refusing to overwrite an existing optimist.json.",
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
