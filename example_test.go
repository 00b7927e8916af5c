package autopilot_test

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/aretw0/autopilot"
	"github.com/aretw0/autopilot/pkg/adapters/memory"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/ports"
)

// ExampleNew_memory drives a local target with a scripted model, with no files and no network
// beyond the test server.
func ExampleNew_memory() {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":10001,"data":{"message":"hello"}}`)
	}))
	defer target.Close()

	cfg := autopilot.DefaultConfig()
	cfg.Transport.BaseURL = target.URL
	cfg.Engine.MaxIterations = 1

	pilot, err := autopilot.New(cfg,
		autopilot.WithTaskSource(memory.NewSource("say hello")),
		autopilot.WithCapabilityCatalog(memory.NewSource("GET /api/greeting")),
		autopilot.WithModel(ports.ModelFunc(func(ctx context.Context, prompt string) (string, error) {
			return `{"action": {"method": "GET", "url": "/api/greeting"}, "step_result": "greeted", "done": true}`, nil
		})),
		autopilot.WithJudgeModel(ports.ModelFunc(func(ctx context.Context, prompt string) (string, error) {
			return `{"should_complete": true, "reason": "greeting returned"}`, nil
		})),
		autopilot.WithSleep(func(context.Context, time.Duration) error { return nil }),
		autopilot.WithLifecycleHooks(domain.LifecycleHooks{
			OnActionDispatched: func(ctx context.Context, e *domain.ActionEvent) {
				fmt.Printf("Action: %s %s -> %d\n", e.Method, e.URL, e.Status)
			},
			OnTaskCompleted: func(ctx context.Context, e *domain.TaskEvent) {
				fmt.Printf("Completed: %s\n", e.Task)
			},
		}),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer pilot.Close()

	ctx := context.Background()
	if err := pilot.Run(ctx); err != nil {
		log.Fatal(err)
	}
	st := pilot.Status(ctx)
	fmt.Printf("Iterations: %d (%s)\n", st.Iterations, st.StopReason)
	// Output:
	// Action: GET /api/greeting -> 200
	// Completed: say hello
	// Iterations: 1 (iteration limit reached)
}
