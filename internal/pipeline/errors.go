package pipeline

import "fmt"

// StageError records a stage that produced no result. It is logged and
// counted, never returned to the caller of ProcessAsset.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AssetError is an unrecoverable failure for one run: the original could not
// be fetched or decoded.
type AssetError struct {
	Step string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }
