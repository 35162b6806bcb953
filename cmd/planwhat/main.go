package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"github.com/planwhat/planwhat/internal/edits"
	"github.com/planwhat/planwhat/internal/plantree"
	"github.com/planwhat/planwhat/internal/reconcile"
)

const requestTimeout = 60 * time.Second

// repl holds the interactive state: the backend client, the plan under
// analysis, and the edit session layered on top of it. Node numbers shown in
// the tree rendering map to ids through nodeIndex.
type repl struct {
	client    *reconcile.Client
	plan      *reconcile.Plan
	session   *edits.Session
	nodeIndex []string
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "planwhat server URL")
	flag.Parse()

	fmt.Println("planwhat - PostgreSQL query plan what-if analysis")
	fmt.Println("Type \\help for commands, 'exit' or 'quit' to exit")
	fmt.Println("SQL statements may span multiple lines - end with ';'")
	fmt.Println()

	logger := zerolog.New(io.Discard)
	r := &repl{client: reconcile.NewClient(*serverURL, logger)}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "planwhat> ",
		HistoryFile:     "/tmp/planwhat_history.txt",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing terminal: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	var statementBuffer strings.Builder
	isMultiLine := false

	for {
		if isMultiLine {
			rl.SetPrompt("       -> ")
		} else {
			rl.SetPrompt("planwhat> ")
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if statementBuffer.Len() == 0 {
					fmt.Println("Goodbye!")
					break
				}
				statementBuffer.Reset()
				isMultiLine = false
				continue
			} else if err == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			continue
		}

		trimmed := strings.TrimSpace(line)

		if !isMultiLine {
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			if trimmed == "exit" || trimmed == "quit" {
				fmt.Println("Goodbye!")
				break
			}
			// backslash commands are single-line
			if strings.HasPrefix(trimmed, "\\") {
				r.runCommand(trimmed)
				continue
			}
		} else if strings.HasPrefix(trimmed, "--") {
			continue
		}

		if statementBuffer.Len() > 0 {
			statementBuffer.WriteString(" ")
		}
		statementBuffer.WriteString(line)

		statement := strings.TrimSpace(statementBuffer.String())
		if strings.HasSuffix(statement, ";") {
			statementBuffer.Reset()
			isMultiLine = false
			r.fetchPlan(strings.TrimSuffix(statement, ";"))
		} else {
			isMultiLine = true
		}
	}
}

// runCommand dispatches a backslash command
func (r *repl) runCommand(input string) {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "\\help":
		printHelp()
	case "\\databases":
		r.listDatabases()
	case "\\use":
		if len(args) != 1 {
			fmt.Println("Usage: \\use <database>")
			return
		}
		r.useDatabase(args[0])
	case "\\tree":
		r.printTree()
	case "\\mode":
		if len(args) != 1 || (args[0] != "type" && args[0] != "order") {
			fmt.Println("Usage: \\mode type|order")
			return
		}
		r.setMode(args[0])
	case "\\select":
		if len(args) != 1 {
			fmt.Println("Usage: \\select <node number>")
			return
		}
		r.selectNode(args[0])
	case "\\type":
		if len(args) == 0 {
			fmt.Println("Usage: \\type <new operator type>")
			return
		}
		r.applyTypeChange(strings.Join(args, " "))
	case "\\swap":
		r.applySwap()
	case "\\pending":
		r.printPending()
	case "\\clear":
		r.clearPending()
	case "\\generate":
		r.generate()
	default:
		fmt.Printf("Unknown command: %s (try \\help)\n", cmd)
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  \\databases          list databases the server can connect to")
	fmt.Println("  \\use <db>           connect to a database")
	fmt.Println("  <sql>;              run EXPLAIN and show the plan tree")
	fmt.Println("  \\tree               show the working plan tree")
	fmt.Println("  \\mode type|order    switch between type-change and order-change editing")
	fmt.Println("  \\select <n>         toggle selection of node n")
	fmt.Println("  \\type <operator>    change the selected node's operator type")
	fmt.Println("  \\swap               swap the two selected nodes (order mode)")
	fmt.Println("  \\pending            list pending edits")
	fmt.Println("  \\clear              discard pending edits")
	fmt.Println("  \\generate           send pending edits and compare plan costs")
}

func (r *repl) listDatabases() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	databases, err := r.client.AvailableDatabases(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(databases) == 0 {
		fmt.Println("No databases configured on the server")
		return
	}
	for _, db := range databases {
		fmt.Printf("  %s\n", db.Label)
	}
}

func (r *repl) useDatabase(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := r.client.SelectDatabase(ctx, name); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Connected to '%s'\n", name)
}

func (r *repl) fetchPlan(query string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	plan, err := r.client.FetchPlan(ctx, query)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	r.plan = plan
	r.session = edits.NewSession(plan.Tree, r.client)
	fmt.Printf("Plan cost: %.2f\n", plan.Cost)
	r.printTree()
}

func (r *repl) setMode(mode string) {
	if r.session == nil {
		fmt.Println("No plan loaded, run a query first")
		return
	}
	if mode == "order" {
		r.session.SetMode(edits.ModeOrderChange)
	} else {
		r.session.SetMode(edits.ModeTypeChange)
	}
	fmt.Printf("Editing mode: %s change (selection cleared)\n", mode)
}

func (r *repl) selectNode(arg string) {
	if r.session == nil {
		fmt.Println("No plan loaded, run a query first")
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(r.nodeIndex) {
		fmt.Printf("Node number must be between 1 and %d\n", len(r.nodeIndex))
		return
	}
	if !r.session.SelectNode(r.nodeIndex[n-1]) {
		fmt.Println("Node is not selectable here (auxiliary node, or not eligible for a swap)")
		return
	}
	r.printTree()
}

func (r *repl) applyTypeChange(newType string) {
	if r.session == nil {
		fmt.Println("No plan loaded, run a query first")
		return
	}
	selected := r.session.Selected()
	if len(selected) != 1 {
		fmt.Println("Select exactly one node first (\\mode type, \\select <n>)")
		return
	}
	if err := r.session.ApplyTypeChange(selected[0], newType); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	r.printTree()
}

func (r *repl) applySwap() {
	if r.session == nil {
		fmt.Println("No plan loaded, run a query first")
		return
	}
	selected := r.session.Selected()
	if len(selected) != 2 {
		fmt.Println("Select two nodes first (\\mode order, \\select <n> twice)")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := r.session.ApplyOrderChange(ctx, selected[0], selected[1]); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	r.printTree()
}

func (r *repl) printPending() {
	if r.session == nil {
		fmt.Println("No plan loaded, run a query first")
		return
	}
	pending := r.session.Pending()
	if len(pending) == 0 {
		fmt.Println("No pending edits")
		return
	}
	for i, edit := range pending {
		switch e := edit.(type) {
		case edits.TypeChange:
			fmt.Printf("  %d. type change: %s -> %s\n", i+1, e.OriginalType, e.NewType)
		case edits.OrderChange:
			fmt.Printf("  %d. order change: swap %s and %s\n", i+1, shortID(e.FirstID), shortID(e.SecondID))
		}
	}
}

func (r *repl) clearPending() {
	if r.session == nil {
		fmt.Println("No plan loaded, run a query first")
		return
	}
	r.session.ClearPending()
	fmt.Println("Pending edits discarded")
	r.printTree()
}

func (r *repl) generate() {
	if r.session == nil || r.plan == nil {
		fmt.Println("No plan loaded, run a query first")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	comparison, err := r.client.GenerateAlternative(ctx, r.plan, r.session.Pending())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Original cost:    %.2f\n", comparison.OriginalCost)
	fmt.Printf("Alternative cost: %.2f\n", comparison.AlternativeCost)
	fmt.Println()
	fmt.Println("Modified query:")
	fmt.Printf("  %s\n", strings.ReplaceAll(comparison.ModifiedSQL, "\n", "\n  "))
	if len(comparison.Hints) > 0 {
		fmt.Println()
		fmt.Println("Hints:")
		for hint, explanation := range comparison.Hints {
			fmt.Printf("  %s\n    %s\n", hint, explanation)
		}
	}
	fmt.Println()
	fmt.Println("Alternative plan:")
	r.renderTree(comparison.Alternative, nil)

	// a successful comparison consumes the pending edits
	r.session.ClearPending()
}

// printTree renders the working tree and rebuilds the number-to-id index
func (r *repl) printTree() {
	if r.session == nil {
		fmt.Println("No plan loaded, run a query first")
		return
	}
	selected := map[string]bool{}
	for _, id := range r.session.Selected() {
		selected[id] = true
	}
	r.nodeIndex = r.nodeIndex[:0]
	r.render(r.session.WorkingTree(), 0, selected, true)
}

// renderTree renders a tree without touching the selection index
func (r *repl) renderTree(root *plantree.Node, selected map[string]bool) {
	r.render(root, 0, selected, false)
}

func (r *repl) render(node *plantree.Node, depth int, selected map[string]bool, index bool) {
	if node == nil {
		return
	}

	indent := strings.Repeat("  ", depth)
	marker := " "
	if selected[node.ID] {
		marker = "*"
	}

	label := node.Label
	if index {
		r.nodeIndex = append(r.nodeIndex, node.ID)
		label = fmt.Sprintf("[%d] %s", len(r.nodeIndex), label)
	}
	fmt.Printf("%s%s %s  (cost: %s)\n", indent, marker, label, node.CostLabel())

	detail := indent + "      "
	if len(node.Tables) > 0 {
		for i, line := range plantree.WrapList(node.Tables, plantree.DefaultWrapWidth) {
			if i == 0 {
				fmt.Printf("%stables: %s\n", detail, line)
			} else {
				fmt.Printf("%s        %s\n", detail, line)
			}
		}
	}
	for _, cond := range node.Conditions {
		for i, line := range plantree.WrapText(cond, plantree.DefaultWrapWidth) {
			if i == 0 {
				fmt.Printf("%son: %s\n", detail, line)
			} else {
				fmt.Printf("%s    %s\n", detail, line)
			}
		}
	}

	for _, child := range node.Children {
		r.render(child, depth+1, selected, index)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
