// Package harness provides conformance testing for trialkit experiments.
//
// The harness loads an experiment, runs it end to end against the seeded
// simulated observer, replays the stored run, and checks assertions about
// the sequences and tables it produced.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	run_id: optional-fixed-id
//	experiment:
//	  observer: {seed: 100}
//	  loops:
//	    - name: main
//	      method: random
//	      seed: 100
//	      n_reps: 3
//	      conditions:
//	        - {ori: 0, label: a}
//	        - {ori: 90, label: b}
//	assertions:
//	  - type: trial_count
//	    loop: main
//	    count: 6
//	  - type: coverage
//	    loop: main
//	    count: 3
//
// Instead of an inline experiment, a scenario may name a CUE file with
// spec (relative to the scenario file) and pick one of its experiments
// with experiment_name.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trial_count: a loop (or, without loop, the whole run) presented N trials
//   - coverage: every condition index of a loop appears exactly N times
//   - sequence: a loop presented exactly the given condition indices
//   - finished: a loop ran to exhaustion
//   - header: the wide table (or a loop's own wide table) has these columns
//   - summary_header: a loop's summary table has these columns
//
// # Deterministic Testing
//
// The harness uses:
//   - A fixed run id (scenario.run_id, or "test-run-default")
//   - Deterministic logical clock (testutil.DeterministicClock)
//   - In-memory SQLite database (isolated per scenario)
//   - Seed 0 for every loop that does not set one
//
// After the run, the stored spec is replayed with engine.Verify; a sequence
// that does not regenerate fails the scenario.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/block_random.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
