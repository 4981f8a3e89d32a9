package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

const pathKey = "path"

func pathHandler(name string) Handler {
	return func(ctx context.Context, view View) (Update, error) {
		return Update{pathKey: []string{name}}, nil
	}
}

func pathStage(name string) Stage {
	return Stage{Name: name, Handler: pathHandler(name), Outputs: []string{pathKey}}
}

func linearGraph(opts ...Option) *Graph {
	g := NewGraph(opts...)
	g.AddField(Field{Name: pathKey, Policy: Append})
	g.AddStage(pathStage("A"))
	g.AddStage(pathStage("B"))
	g.AddStage(pathStage("C"))
	g.AddEdge("A", "B")
	g.AddEdge("B", "C")
	g.SetEntryPoint("A")
	g.SetFinishPoint("C")
	return g
}

func expectValidation(t *testing.T, g *Graph, kind ValidationKind) {
	t.Helper()
	_, err := g.Compile()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError %q, got %v", kind, err)
	}
	if ve.Kind != kind {
		t.Fatalf("validation kind = %q, want %q (%v)", ve.Kind, kind, err)
	}
}

func TestGraphCompileValidation(t *testing.T) {
	t.Run("missing entry", func(t *testing.T) {
		g := NewGraph()
		g.AddStage(pathStage("A"))
		g.SetFinishPoint("A")
		expectValidation(t, g, InvalidMissingEntry)
	})

	t.Run("missing finish", func(t *testing.T) {
		g := NewGraph()
		g.AddStage(pathStage("A"))
		g.SetEntryPoint("A")
		expectValidation(t, g, InvalidMissingFinish)
	})

	t.Run("duplicate stage", func(t *testing.T) {
		g := linearGraph()
		g.AddStage(pathStage("B"))
		expectValidation(t, g, InvalidDuplicateStage)
	})

	t.Run("edge from unknown stage", func(t *testing.T) {
		g := linearGraph()
		g.AddEdge("X", "A")
		expectValidation(t, g, InvalidUnknownStage)
	})

	t.Run("edge to unknown stage", func(t *testing.T) {
		g := NewGraph()
		g.AddField(Field{Name: pathKey, Policy: Append})
		g.AddStage(pathStage("A"))
		g.AddStage(pathStage("B"))
		g.AddEdge("A", "X")
		g.SetEntryPoint("A")
		g.SetFinishPoint("B")
		expectValidation(t, g, InvalidUndeclaredTarget)
	})

	t.Run("undeclared router target", func(t *testing.T) {
		g := NewGraph()
		g.AddField(Field{Name: pathKey, Policy: Append})
		g.AddStage(pathStage("A"))
		g.AddStage(pathStage("B"))
		g.AddConditionalEdge("A", func(ctx context.Context, view View) (Decision, error) {
			return Goto("B"), nil
		}, []string{"B", "Z"})
		g.SetEntryPoint("A")
		g.SetFinishPoint("B")
		expectValidation(t, g, InvalidUndeclaredTarget)
	})

	t.Run("fallback outside targets", func(t *testing.T) {
		g := NewGraph()
		g.AddField(Field{Name: pathKey, Policy: Append})
		g.AddStage(pathStage("A"))
		g.AddStage(pathStage("B"))
		g.AddStage(pathStage("C"))
		g.AddConditionalEdge("A", func(ctx context.Context, view View) (Decision, error) {
			return FanOut(), nil
		}, []string{"B"}, WithJoin("C"), WithFallback("C"))
		g.SetEntryPoint("A")
		g.SetFinishPoint("C")
		expectValidation(t, g, InvalidUndeclaredTarget)
	})

	t.Run("unknown join", func(t *testing.T) {
		g := NewGraph()
		g.AddField(Field{Name: pathKey, Policy: Append})
		g.AddStage(pathStage("A"))
		g.AddStage(pathStage("B"))
		g.AddConditionalEdge("A", func(ctx context.Context, view View) (Decision, error) {
			return FanOut(), nil
		}, []string{"B"}, WithJoin("J"))
		g.SetEntryPoint("A")
		g.SetFinishPoint("B")
		expectValidation(t, g, InvalidJoin)
	})

	t.Run("two transitions", func(t *testing.T) {
		g := linearGraph()
		g.AddEdge("A", "C")
		expectValidation(t, g, InvalidTransition)
	})

	t.Run("dangling stage", func(t *testing.T) {
		g := linearGraph()
		g.AddStage(pathStage("D"))
		expectValidation(t, g, InvalidTransition)
	})

	t.Run("finish with transition", func(t *testing.T) {
		g := linearGraph()
		g.AddEdge("C", "A")
		expectValidation(t, g, InvalidTransition)
	})

	t.Run("unreachable stage", func(t *testing.T) {
		g := linearGraph()
		g.AddStage(pathStage("D"))
		g.AddEdge("D", "C")
		expectValidation(t, g, InvalidUnreachable)
	})

	t.Run("cycle", func(t *testing.T) {
		g := NewGraph()
		g.AddField(Field{Name: pathKey, Policy: Append})
		g.AddStage(pathStage("A"))
		g.AddStage(pathStage("B"))
		g.AddStage(pathStage("C"))
		g.AddEdge("A", "B")
		g.AddConditionalEdge("B", func(ctx context.Context, view View) (Decision, error) {
			return Goto("A"), nil
		}, []string{"A", "C"})
		g.SetEntryPoint("A")
		g.SetFinishPoint("C")
		_, err := g.Compile()
		if err == nil || !strings.Contains(err.Error(), "A -> B -> A") {
			t.Fatalf("expected cycle error, got %v", err)
		}
	})

	t.Run("undeclared output field", func(t *testing.T) {
		g := linearGraph()
		g.AddStage(Stage{Name: "D", Handler: pathHandler("D"), Outputs: []string{"missing"}})
		g.AddEdge("D", "C")
		expectValidation(t, g, InvalidUndeclaredField)
	})

	t.Run("undeclared status field", func(t *testing.T) {
		g := linearGraph(WithStatusField("status"))
		expectValidation(t, g, InvalidUndeclaredField)
	})

	t.Run("valid graph", func(t *testing.T) {
		if _, err := linearGraph().Compile(); err != nil {
			t.Fatalf("compile: %v", err)
		}
	})
}

func TestGraphSequentialOrder(t *testing.T) {
	executor, err := linearGraph().Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	c, err := executor.Run(context.Background(), "case-1", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if c.Status != StatusTerminal {
		t.Fatalf("status = %s", c.Status)
	}
	if got, _ := c.Final.Get(pathKey); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("path = %v", got)
	}
	if got := c.Stages(); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("trace = %v", got)
	}
	if c.Trace[0].Fields[0] != pathKey {
		t.Fatalf("trace fields = %v", c.Trace[0].Fields)
	}
}

func routedGraph(router Router) *Graph {
	g := NewGraph(WithStatusField("status"))
	g.AddField(
		Field{Name: pathKey, Policy: Append},
		Field{Name: "status"},
		Field{Name: "verdict"},
	)
	g.AddStage(Stage{
		Name: "check",
		Handler: func(ctx context.Context, view View) (Update, error) {
			return Update{"verdict": view.String("status"), pathKey: []string{"check"}}, nil
		},
		Outputs: []string{"verdict", pathKey},
	})
	g.AddStage(Stage{
		Name: "accept",
		Handler: func(ctx context.Context, view View) (Update, error) {
			return Update{"status": "accepted", pathKey: []string{"accept"}}, nil
		},
		Outputs: []string{"status", pathKey},
	})
	g.AddStage(Stage{
		Name: "done",
		Handler: func(ctx context.Context, view View) (Update, error) {
			return Update{pathKey: []string{"done"}}, nil
		},
		Outputs: []string{pathKey},
	})
	g.AddConditionalEdge("check", router, []string{"accept", "done"})
	g.AddEdge("accept", "done")
	g.SetEntryPoint("check")
	g.SetFinishPoint("done")
	return g
}

func TestConditionalRouting(t *testing.T) {
	var seen []string
	router := func(ctx context.Context, view View) (Decision, error) {
		seen = view.Fields()
		if view.String("verdict") == "ok" {
			return Goto("accept"), nil
		}
		return Terminal(), nil
	}
	executor, err := routedGraph(router).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	t.Run("goto", func(t *testing.T) {
		c, err := executor.Run(context.Background(), "ok", Update{"status": "ok"})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if got := c.Stages(); !reflect.DeepEqual(got, []string{"check", "accept", "done"}) {
			t.Fatalf("trace = %v", got)
		}
		if c.Outcome != "accepted" {
			t.Fatalf("outcome = %q", c.Outcome)
		}
		// the router sees only the outputs of check
		if !reflect.DeepEqual(seen, []string{pathKey, "verdict"}) {
			t.Fatalf("router view = %v", seen)
		}
	})

	t.Run("terminal", func(t *testing.T) {
		c, err := executor.Run(context.Background(), "skip", Update{"status": "nope"})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if got := c.Stages(); !reflect.DeepEqual(got, []string{"check", "done"}) {
			t.Fatalf("trace = %v", got)
		}
		if c.Outcome != "nope" {
			t.Fatalf("outcome = %q", c.Outcome)
		}
	})
}

func TestRoutingContractViolation(t *testing.T) {
	executor, err := routedGraph(func(ctx context.Context, view View) (Decision, error) {
		return Goto("elsewhere"), nil
	}).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	c, err := executor.Run(context.Background(), "bad-route", nil)
	var rv *RoutingContractViolation
	if !errors.As(err, &rv) || rv.Target != "elsewhere" {
		t.Fatalf("expected routing violation, got %v", err)
	}
	if c.Status != StatusTerminal || c.Outcome != OutcomeError {
		t.Fatalf("case = %s/%s", c.Status, c.Outcome)
	}
	if got := c.Stages(); !reflect.DeepEqual(got, []string{"check"}) {
		t.Fatalf("trace = %v", got)
	}
}

func TestStageErrors(t *testing.T) {
	t.Run("undeclared output", func(t *testing.T) {
		g := linearGraph()
		g.stages["B"] = Stage{Name: "B", Handler: func(ctx context.Context, view View) (Update, error) {
			return Update{"other": 1}, nil
		}, Outputs: []string{pathKey}}
		executor, err := g.Compile()
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		_, err = executor.Run(context.Background(), "c", nil)
		var sv *SchemaViolation
		if !errors.As(err, &sv) || sv.Stage != "B" || sv.Field != "other" {
			t.Fatalf("expected schema violation at B, got %v", err)
		}
	})

	t.Run("handler failure", func(t *testing.T) {
		boom := errors.New("boom")
		g := linearGraph()
		g.stages["B"] = Stage{Name: "B", Handler: func(ctx context.Context, view View) (Update, error) {
			return nil, boom
		}, Outputs: []string{pathKey}}
		executor, err := g.Compile()
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		c, err := executor.Run(context.Background(), "c", nil)
		var he *HandlerError
		if !errors.As(err, &he) || he.Stage != "B" || !errors.Is(err, boom) {
			t.Fatalf("expected handler error at B, got %v", err)
		}
		if c.Outcome != OutcomeError || !errors.Is(c.Err, boom) {
			t.Fatalf("case outcome = %q err = %v", c.Outcome, c.Err)
		}
	})

	t.Run("handler panic", func(t *testing.T) {
		g := linearGraph()
		g.stages["B"] = Stage{Name: "B", Handler: func(ctx context.Context, view View) (Update, error) {
			panic("kaboom")
		}, Outputs: []string{pathKey}}
		executor, err := g.Compile()
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		_, err = executor.Run(context.Background(), "c", nil)
		if err == nil || !strings.Contains(err.Error(), "panic: kaboom") {
			t.Fatalf("expected recovered panic, got %v", err)
		}
	})

	t.Run("unknown initial field", func(t *testing.T) {
		executor, err := linearGraph().Compile()
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		_, err = executor.Run(context.Background(), "c", Update{"nope": 1})
		var sv *SchemaViolation
		if !errors.As(err, &sv) {
			t.Fatalf("expected schema violation, got %v", err)
		}
	})
}

func TestStageContextAndMiddleware(t *testing.T) {
	var names []string
	mw := func(next Handler) Handler {
		return func(ctx context.Context, view View) (Update, error) {
			sc, ok := FromStageContext(ctx)
			if !ok {
				t.Fatalf("stage context missing")
			}
			if sc.CaseID != "ctx-case" {
				t.Fatalf("case id = %q", sc.CaseID)
			}
			names = append(names, sc.Name)
			return next(ctx, view)
		}
	}
	executor, err := linearGraph(WithMiddleware(mw)).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := executor.Run(context.Background(), "ctx-case", nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"A", "B", "C"}) {
		t.Fatalf("middleware saw %v", names)
	}
}

func TestExecutorEdges(t *testing.T) {
	executor, err := routedGraph(func(ctx context.Context, view View) (Decision, error) {
		return Terminal(), nil
	}).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := []EdgeInfo{
		{From: "check", To: "accept", Kind: "route"},
		{From: "check", To: "done", Kind: "route"},
		{From: "accept", To: "done", Kind: "edge"},
	}
	if got := executor.Edges(); !reflect.DeepEqual(got, want) {
		t.Fatalf("edges = %v", got)
	}
}

func TestRunLongGraph(t *testing.T) {
	const n = 100
	g := NewGraph()
	g.AddField(Field{Name: pathKey, Policy: Append})
	for i := 0; i < n; i++ {
		g.AddStage(pathStage(fmt.Sprintf("s%03d", i)))
		if i > 0 {
			g.AddEdge(fmt.Sprintf("s%03d", i-1), fmt.Sprintf("s%03d", i))
		}
	}
	g.SetEntryPoint("s000")
	g.SetFinishPoint(fmt.Sprintf("s%03d", n-1))
	executor, err := g.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	c, err := executor.Run(context.Background(), "long", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if c.Status != StatusTerminal || len(c.Trace) != n {
		t.Fatalf("status = %s, steps = %d", c.Status, len(c.Trace))
	}
}

func TestWithMiddlewareAppends(t *testing.T) {
	var calls []string
	named := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, view View) (Update, error) {
				calls = append(calls, name)
				return next(ctx, view)
			}
		}
	}
	executor, err := linearGraph(WithMiddleware(named("outer")), WithMiddleware(named("inner"))).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := executor.Run(context.Background(), "mw", nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"outer", "inner", "outer", "inner", "outer", "inner"}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("middleware calls = %v", calls)
	}
}
