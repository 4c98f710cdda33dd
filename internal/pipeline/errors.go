package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a step of the analyze pipeline.
type Stage string

const (
	StageStorage       Stage = "storage"
	StageTranscription Stage = "transcription"
	StageRetrieval     Stage = "retrieval"
	StageConversation  Stage = "conversation"
	StageGeneration    Stage = "generation"
	StageSynthesis     Stage = "synthesis"
)

var (
	ErrTranscription = errors.New("transcription failed")
	ErrRetrieval     = errors.New("retrieval failed")
	ErrConversation  = errors.New("conversation unavailable")
	ErrGeneration    = errors.New("generation failed")
	ErrSynthesis     = errors.New("synthesis failed")
	ErrStorageIO     = errors.New("storage i/o failed")

	// ErrNoAudio is returned when a request carries no audio upload.
	ErrNoAudio = errors.New("audio is required")
)

var stageSentinels = map[Stage]error{
	StageStorage:       ErrStorageIO,
	StageTranscription: ErrTranscription,
	StageRetrieval:     ErrRetrieval,
	StageConversation:  ErrConversation,
	StageGeneration:    ErrGeneration,
	StageSynthesis:     ErrSynthesis,
}

// StageError reports which stage failed. It matches both the stage sentinel
// and the underlying cause with errors.Is.
type StageError struct {
	Stage          Stage
	ConversationID string
	Err            error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", stageSentinels[e.Stage], e.Err)
}

func (e *StageError) Unwrap() []error {
	if s, ok := stageSentinels[e.Stage]; ok {
		return []error{s, e.Err}
	}
	return []error{e.Err}
}
