/*
Package ports defines the driven ports (interfaces) for the Autopilot engine.

These interfaces decouple the control loop from external implementations, allowing
it to run against different storage backends, model providers and HTTP stacks.

# Key Interfaces

  - KVStore: Raw string key/value storage behind the typed state service.
  - Model: The opaque language model capability (prompt in, text out).
  - Transport: The HTTP capability used to execute actions.
  - TextSource: Read-only text such as the task list or the capability catalog.
*/
package ports
