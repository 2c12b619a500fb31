package sdk

// SupportedSchemaMajor is the major schema version this SDK supports.
// Compatibility requires the server's schema major version to match.
const SupportedSchemaMajor = "1"
