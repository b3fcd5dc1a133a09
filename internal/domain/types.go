package domain

// JobPhase tracks each lifecycle stage of the single transcription job.
type JobPhase string

const (
	JobPhaseIdle        JobPhase = "idle"
	JobPhaseSubmitting  JobPhase = "submitting"
	JobPhaseConverting  JobPhase = "converting"
	JobPhaseRecognizing JobPhase = "recognizing"
	JobPhaseCompleted   JobPhase = "completed"
	JobPhaseFailed      JobPhase = "failed"
	JobPhaseStopped     JobPhase = "stopped"
)

// InFlight reports whether the phase is one of the active pipeline stages.
func (p JobPhase) InFlight() bool {
	switch p {
	case JobPhaseSubmitting, JobPhaseConverting, JobPhaseRecognizing:
		return true
	default:
		return false
	}
}

// Terminal reports whether the phase ends a job.
func (p JobPhase) Terminal() bool {
	switch p {
	case JobPhaseCompleted, JobPhaseFailed, JobPhaseStopped:
		return true
	default:
		return false
	}
}

// JobState is the read-only lifecycle record exposed to UI consumers.
type JobState struct {
	JobID              string   `json:"jobId,omitempty"`
	Phase              JobPhase `json:"phase"`
	ResultMessage      string   `json:"resultMessage,omitempty"`
	OutputLines        []string `json:"outputLines"`
	ElapsedMs          int64    `json:"elapsedMs"`
	HasFinalArtifact   bool     `json:"hasFinalArtifact"`
	TotalDurationSec   *float64 `json:"totalDurationSec,omitempty"`
	CurrentPositionSec float64  `json:"currentPositionSec"`
	ProgressPercent    float64  `json:"progressPercent"`
	AudioPath          string   `json:"audioPath,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s JobState) Clone() JobState {
	out := s
	out.OutputLines = append([]string(nil), s.OutputLines...)
	if s.TotalDurationSec != nil {
		d := *s.TotalDurationSec
		out.TotalDurationSec = &d
	}
	return out
}

// ProgressEvent carries one recognition progress report.
type ProgressEvent struct {
	PositionSec float64 `json:"current_seconds"`
	TotalSec    float64 `json:"total_seconds"`
	Percent     float64 `json:"percentage"`
}

// ErrorSeverity separates terminal pipeline failures from informational notices.
type ErrorSeverity string

const (
	SeverityFatal  ErrorSeverity = "fatal"
	SeverityNotice ErrorSeverity = "notice"
)

// ConfigCheck is the pipeline's verdict on the current configuration.
type ConfigCheck struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ConversionResult is returned by a successful format conversion.
type ConversionResult struct {
	AudioPath   string   `json:"output_path"`
	DurationSec *float64 `json:"duration_seconds,omitempty"`
}

// RecognitionRequest starts speech recognition on a converted artifact.
type RecognitionRequest struct {
	AudioPath   string
	DurationSec *float64
	Settings    Settings
}
