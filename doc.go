/*
Package autopilot runs an autonomous agent that operates a web application on
behalf of a user by talking to a language model in a loop.

Each iteration picks a task, asks the model what to do next, turns the reply
into concrete HTTP calls, executes them against the target application and asks
a second model call whether the task is finished. Progress lives in a small
key-value store (in memory or Redis) that the administrative surface can
inspect and edit while the loop runs.

# Architecture

The core is hexagonal. The packages under pkg/ hold the components:

  - pkg/state: typed access to the shared state bag.
  - pkg/interpret: recognizes the action shapes a model emits and repairs the rest.
  - pkg/dispatch: executes actions and captures login credentials.
  - pkg/tasks: picks tasks from a delimited catalog.
  - pkg/prompt: classifies the last response and builds the next prompt.
  - pkg/judge: the completion verdict that ends a task.

Adapters for stores, models and transports live in pkg/adapters. The loop itself
is internal/runtime; this package wires everything from a Config.

# Usage

	cfg, err := autopilot.LoadConfig("autopilot.yaml")
	if err != nil {
		log.Fatal(err)
	}
	pilot, err := autopilot.New(cfg, autopilot.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	defer pilot.Close()

	// Blocks until the iteration ceiling, an empty catalog or ctx cancellation.
	if err := pilot.Run(ctx); err != nil {
		log.Fatal(err)
	}

Use Start, Stop and Status instead of Run to drive the loop from a server.
*/
package autopilot
