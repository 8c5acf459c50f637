package strata_test

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/topology"
)

func Example() {
	topo, err := topology.NewBuilder().
		Chain([]string{"planner", "designer", "coder"}, domain.L4).
		Build()
	if err != nil {
		panic(err)
	}

	eng, err := strata.New("demo", strata.WithTopology(topo))
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		panic(err)
	}
	defer eng.Stop()

	out, err := eng.Submit(ctx, "Build a TODO service")
	if err != nil {
		panic(err)
	}
	for _, r := range out.Results {
		fmt.Println(r.NeuronID, r.Layer, r.Source)
	}
	fmt.Println(out.LayersActivated)
	// Output:
	// coder L2 mock
	// [L4 L3 L2]
}
