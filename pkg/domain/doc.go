/*
Package domain contains the core types of the Autopilot control loop.

It is kept free of I/O and persistence, following Hexagonal Architecture principles.

# Key Entities

  - ActionSpec: A normalized HTTP call (method, url, params, body) derived from model output.
  - Plan: The recognized Shape (plain, stepped, nested) plus its ActionSpecs.
  - ModelTurn: The decoded reply of the primary model for one turn.
  - Verdict: The completion judgment that decides whether a task ends.
  - ResponseClass: The heuristic classification of the last action response.
  - LifecycleHooks: Callbacks fired by the engine for observability.
*/
package domain
