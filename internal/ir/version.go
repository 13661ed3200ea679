package ir

// Version constants for the experiment description schema and the engine.
const (
	// SpecVersion is the ExperimentSpec schema version.
	SpecVersion = "1"

	// EngineVersion is the trialkit engine version.
	EngineVersion = "0.1.0"
)
