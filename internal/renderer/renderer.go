// Package renderer draws a Program's Step tree for the validate
// subcommand, annotated with the diagnostics the validator attached to
// each path, using m1gwings/treedrawer the way a CLI renders any other
// nested structure it wants a human to scan quickly.
package renderer

import (
	"fmt"
	"strings"

	"github.com/m1gwings/treedrawer/tree"

	"github.com/enose-rig/enosectl/internal/program"
)

// ProgramTree renders prog as a box-drawing tree, with every step's
// path annotated with any error/warning diagnostics from result at
// that path.
func ProgramTree(prog program.Program, result program.ValidationResult) string {
	byPath := indexDiagnostics(result)

	root := tree.NewTree(tree.NodeString(prog.Name))
	for i, step := range prog.Steps {
		addStep(root, program.Path(i), step, byPath)
	}
	return root.String()
}

func indexDiagnostics(result program.ValidationResult) map[string][]string {
	idx := make(map[string][]string)
	for _, d := range result.Errors {
		idx[d.Path] = append(idx[d.Path], fmt.Sprintf("ERROR %s: %s", d.Code, d.Message))
	}
	for _, d := range result.Warnings {
		idx[d.Path] = append(idx[d.Path], fmt.Sprintf("warn %s: %s", d.Code, d.Message))
	}
	return idx
}

func addStep(parent *tree.Tree, path string, step program.Step, byPath map[string][]string) {
	label := fmt.Sprintf("%s [%s]", step.Name, step.Action.Tag())
	for _, note := range byPath[path] {
		label += "\n" + note
	}
	node := parent.AddChild(tree.NodeString(label))

	if step.Action == program.ActionLoop && step.Loop != nil {
		for i, child := range step.Loop.Steps {
			childPath := fmt.Sprintf("%s.steps[%d]", path, i)
			addStep(node, childPath, child, byPath)
		}
	}
}

// Summary renders the short pass/fail header the validate subcommand
// prints above the tree.
func Summary(result program.ValidationResult) string {
	var b strings.Builder
	if result.Valid {
		b.WriteString("VALID")
	} else {
		b.WriteString("INVALID")
	}
	fmt.Fprintf(&b, " (%d errors, %d warnings)", len(result.Errors), len(result.Warnings))
	return b.String()
}
