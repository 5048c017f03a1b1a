package debug

import (
	"fmt"
	"strings"
)

// DOTOptions configures rendering a captured run into Graphviz DOT
// format, the offline-visualization consumer spec §6 anticipates for
// the debug log.
type DOTOptions struct {
	RankDirection string // "TB", "LR", "BT", "RL"
	ShowArgs      bool
	FailedColor   string
	OkColor       string
}

// DefaultDOTOptions returns sensible rendering defaults.
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		RankDirection: "LR",
		ShowArgs:      true,
		FailedColor:   "firebrick",
		OkColor:       "black",
	}
}

// RenderDOT turns a captured sequence of Records into a Graphviz DOT
// digraph: one node per state seen, one edge per TRANSITION or
// TRANSITION_ENTRYPOINT record, labeled with the event that fired it.
// Failed transitions are rendered with FailedColor.
func RenderDOT(records []Record, opts ...DOTOptions) string {
	o := DefaultDOTOptions()
	if len(opts) > 0 {
		o = opts[0]
	}

	var dot strings.Builder
	dot.WriteString("digraph HsmRun {\n")
	fmt.Fprintf(&dot, "  rankdir=%s;\n", o.RankDirection)
	dot.WriteString("  node [shape=box];\n\n")

	seen := map[int32]bool{}
	nodeName := func(id int32) string {
		if !seen[id] {
			seen[id] = true
			fmt.Fprintf(&dot, "  \"%d\" [label=\"%d\"];\n", id, id)
		}
		return fmt.Sprintf("%d", id)
	}

	for _, r := range records {
		switch r.Action {
		case ActionTransition, ActionTransitionEntryPoint:
			from := nodeName(r.Source)
			to := nodeName(r.Target)
			color := o.OkColor
			if r.Failed {
				color = o.FailedColor
			}
			label := fmt.Sprintf("e%d", r.Event)
			if o.ShowArgs && len(r.Args) > 0 {
				label += " (" + strings.Join(r.Args, ",") + ")"
			}
			fmt.Fprintf(&dot, "  \"%s\" -> \"%s\" [label=\"%s\" color=%s];\n", from, to, label, color)
		}
	}

	dot.WriteString("}\n")
	return dot.String()
}
