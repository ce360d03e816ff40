// Package harness provides end-to-end scenario testing for the gating
// engine.
//
// The harness seeds a collection fixture into a fresh in-memory store,
// runs one gating pass under an inline CUE configuration, and validates
// the resulting plan, marks, diagnostics and final queue states as
// executable contract tests.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config: |
//	  stages: vocab: [
//	    {index: 0, templates: ["recognition"], threshold: 2.5},
//	  ]
//	collection:
//	  notetypes:
//	    - name: vocab
//	      fields: [Expression, Links]
//	      templates: [recognition, recall]
//	  notes:
//	    - id: 1
//	      type: vocab
//	      fields: { Expression: "北口" }
//	  cards:
//	    - id: 101
//	      note: 1
//	      ord: 0
//	      stability: 6.0
//	    - id: 102
//	      note: 1
//	      ord: 1
//	      queue: suspended
//	trigger: manual
//	expect:
//	  unsuspended: [102]
//	  marks:
//	    1: ["torii::family_gate::unlocked::stage0"]
//	golden: scenario_name
//
// # Expectation Semantics
//
// The expect clause supports the following checks:
//
//   - suspended / unsuspended: the exact plan, both directions. A
//     planned change the clause never mentioned fails the scenario.
//   - marks: subset match of unlock tags per note.
//   - diagnostics: each listed code must appear at least once.
//   - scope_errors: the exact multiset of gate error codes.
//   - skipped: whether the pass was skipped by trigger configuration.
//   - final_queues: post-pass queue state per card, read back from the
//     store, so dry-run scenarios can prove nothing was written.
//
// A scenario may omit the expect clause entirely and assert through its
// golden file alone.
//
// # Deterministic Testing
//
// All scenarios execute with a fixed pass token and an in-memory SQLite
// database isolated per scenario. Plans, marks and diagnostics are
// emitted in sorted order by the engine, so the rendered report is
// identical across runs and suitable for golden file comparison.
//
// # Usage
//
// Load a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/stage-unlock.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Execute it:
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
