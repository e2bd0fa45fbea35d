package migration

import (
	"fmt"

	"github.com/example/scope-migrator/internal/graph"
)

// transitionGraph is the default Router, a breadth-first search over the
// transition snapshot.
type transitionGraph struct {
	g *graph.Graph[Transition]
}

// NewTransitionGraph validates a transition snapshot and returns a Router
// over it. Paths with the fewest transitions win.
func NewTransitionGraph(transitions []Transition) (Router, error) {
	if err := ValidateTransitions(transitions); err != nil {
		return nil, err
	}
	return &transitionGraph{g: graph.New(transitions)}, nil
}

func (tg *transitionGraph) Path(from, to State) (Path, bool) {
	path, ok := tg.g.ShortestPath(string(from), string(to), nil)
	return Path(path), ok
}

func (tg *transitionGraph) NonDestructivePath(from, to State) (Path, bool) {
	path, ok := tg.g.ShortestPath(string(from), string(to), func(t Transition) bool {
		return !t.Destructive
	})
	return Path(path), ok
}

func (tg *transitionGraph) States() []State {
	nodes := tg.g.Nodes()
	states := make([]State, len(nodes))
	for i, node := range nodes {
		states[i] = State(node)
	}
	return states
}

// ValidateTransitions rejects empty states or scripts, self-loops and
// duplicate before/after pairs.
func ValidateTransitions(transitions []Transition) error {
	seen := make(map[[2]State]string, len(transitions))
	for _, t := range transitions {
		switch {
		case t.Script == "":
			return fmt.Errorf("%w: transition %s -> %s has no script", ErrInvalidTransition, t.Before, t.After)
		case t.Before == "" || t.After == "":
			return fmt.Errorf("%w: script %s must name both before and after states", ErrInvalidTransition, t.Script)
		case t.Before == t.After:
			return fmt.Errorf("%w: script %s starts and ends at %q", ErrInvalidTransition, t.Script, t.Before)
		}
		key := [2]State{t.Before, t.After}
		if other, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s and %s both move %q to %q",
				ErrInvalidTransition, other, t.Script, t.Before, t.After)
		}
		seen[key] = t.Script
	}
	return nil
}

// ValidatePath checks that consecutive transitions share their boundary state.
func ValidatePath(path Path) error {
	for i := 1; i < len(path); i++ {
		if path[i].Before != path[i-1].After {
			return fmt.Errorf("%w: step %d ends at %q but step %d starts at %q",
				ErrDisconnectedPath, i, path[i-1].After, i+1, path[i].Before)
		}
	}
	return nil
}
