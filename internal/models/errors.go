package models

import "errors"

var (
	// ErrInvalidURL marks an input that is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")

	// ErrFetchFailure marks a network, status or extraction failure for one URL.
	ErrFetchFailure = errors.New("fetch failed")

	// ErrEmptyContent means nothing usable was left to index.
	ErrEmptyContent = errors.New("no documents loaded")

	// ErrSplitFailure marks a document that could not be chunked.
	ErrSplitFailure = errors.New("split failed")

	// ErrIndexBuild means embedding or index construction failed.
	// The previously persisted index is left untouched.
	ErrIndexBuild = errors.New("index build failed")

	// ErrIndexMissing means no index has been processed yet.
	ErrIndexMissing = errors.New("index not found, process some URLs first")

	// ErrIndexFormatMismatch means the persisted index cannot be used with
	// the current format version or embedding model.
	ErrIndexFormatMismatch = errors.New("index format mismatch")

	ErrRetrieval = errors.New("retrieval failed")

	// ErrModelCall means the language model call failed or timed out.
	ErrModelCall = errors.New("language model call failed")

	ErrEmptyQuestion = errors.New("question is empty")

	// ErrBusy means another action is still running.
	ErrBusy = errors.New("another action is in progress")
)

// IsWarning reports whether err is an expected outcome that should be shown
// to the user as a warning instead of an error.
func IsWarning(err error) bool {
	return errors.Is(err, ErrEmptyContent) || errors.Is(err, ErrIndexMissing)
}
