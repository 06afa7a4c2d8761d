// Package wetbench automates a small lab bench: a MyCobot 280 arm that
// moves vials and cups onto an RS-232 balance, and a Masterflex L/S
// peristaltic pump that dilutes weighed samples to a target
// concentration in a closed dispense-and-verify loop.
//
// # Installation
//
//	go install github.com/quantalab/wetbench/cmd/wetbench@latest
//
// # Usage
//
// First, scan for devices and write the bench configuration:
//
//	go run ./cmd/bench-info
//
// Teach the arm its pick-and-place poses, then run a dilution:
//
//	wetbench teach
//	wetbench dilute --profile water
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/wetbench: CLI with dilute, watch, teach, transfer, calibration
//     and diagnostic commands
//   - pkg/arm: MyCobot 280 serial driver and recorded position store
//   - pkg/balance: balance serial driver and background weight reader
//   - pkg/pump: Masterflex pump driver, stop detection, calibration profiles
//   - pkg/dilute: dose computation and the dispense controller
//   - pkg/sequence: scripted vial/cup transfer sequences
//   - pkg/watch: live weight streaming (terminal and websocket)
package wetbench
