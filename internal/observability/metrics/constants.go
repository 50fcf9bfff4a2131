// Package metrics defines the Prometheus collectors exported by the
// application.
package metrics

// Namespace prefixes every metric name.
const Namespace = "pneumodetect"

// Histogram bucket parameters.
const (
	BucketStart1ms = 0.001
	BucketFactor2  = 2
	BucketCount12  = 12 // 1ms to ~2s
	BucketCount15  = 15 // 1ms to ~16s
)

// Label values for auth events.
const (
	AuthLogin         = "login"
	AuthLoginFailed   = "login_failed"
	AuthLockedOut     = "locked_out"
	AuthLogout        = "logout"
	AuthRegister      = "register"
	AuthRegisterTaken = "register_taken"
)

// Label values for rejected uploads and failed predictions.
const (
	RejectNoFile        = "no_file"
	RejectEmptyFilename = "empty_filename"
	RejectExtension     = "invalid_extension"
	RejectTooLarge      = "too_large"
	RejectDiskFull      = "disk_full"
	RejectCorruptImage  = "corrupt_image"

	ErrorInference = "inference"
	ErrorStorage   = "storage"
)
