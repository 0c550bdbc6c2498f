// Package plan holds the component plan produced by the planning stage and the
// dependency graph used to order it.
//
// The planner collaborator returns components with declared dependencies. Resolve
// validates them, rejects cycles and recomputes the execution order level by level
// so that the generation stage always sees a consistent order:
//
//	p := &plan.Plan{Components: []plan.Component{
//		{Name: "vpc", ResourceType: "aws_vpc"},
//		{Name: "subnet", ResourceType: "aws_subnet", Dependencies: []string{"vpc"}},
//	}}
//	dag, err := plan.Resolve(p)
//	// p.ExecutionOrder == []string{"vpc", "subnet"}
//	fmt.Print(dag.ToDOT())
package plan
