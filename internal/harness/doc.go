// Package harness runs store conformance scenarios.
//
// A scenario is a YAML file listing store operations in order, what each
// one is expected to return, and assertions over the final state. Every
// scenario runs against a fresh database file with a deterministic clock,
// so the resulting trace and state are identical on every run and can be
// compared against golden snapshots.
//
// # Scenario Format
//
//	name: batch_fault_rolls_back
//	description: "A failing item aborts the whole batch"
//	flow:
//	  - op: start_run
//	    args: { run_id: r1, run_type: daily }
//	  - op: upsert_items
//	    args:
//	      items:
//	        - { item_id: a, run_id: r1, item_type: news, title: A }
//	        - { item_id: b, run_id: ghost, item_type: news, title: B }
//	    expect: { error: NOT_FOUND }
//	assertions:
//	  - type: item_count
//	    run_id: r1
//	    count: 0
//
// # Operations
//
//   - start_run: run_id, run_type, settings (object)
//   - finish_run: run_id, status, notes
//   - upsert_item: item (items-document item)
//   - upsert_items: items (list of items-document items)
//   - write_telemetry: run_id, payload (object)
//   - begin, commit, rollback: no args
//
// Items use the same field names as items documents (see package ingest)
// and go through the same validation.
//
// A step without expect must succeed. expect.error names the store error
// code the step must fail with (NOT_FOUND, DUPLICATE_KEY, ABORTED, ...).
//
// # Assertion Types
//
//   - run: the run's fields match expect (subset match)
//   - item: the item in run_id's listing matches expect (subset match)
//   - item_count: run_id has exactly count items
//   - item_order: run_id lists exactly items, in that order
//   - telemetry: the run's telemetry payload matches expect (subset match)
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/r1.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
