// Copyright © 2024 Crestflow <dev@crestflow.io>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/crestflow/crestflow/filter"
)

// listPageArgs carries the --page/--page-size/--where flags every list and
// tree command shares.
type listPageArgs struct {
	page     int
	pageSize int
	where    string
}

func (l *listPageArgs) register(flags *pflag.FlagSet) {
	flags.IntVar(&l.page, "page", 1, pageFlagDescription)
	flags.IntVar(&l.pageSize, "page-size", 100, pageSizeFlagDescription)
	flags.StringVarP(&l.where, "where", "w", "", whereFlagDescription)
}

func (l *listPageArgs) filter() (*filter.Filter, error) {
	return filter.Parse(l.where)
}

// title renders the span header above a table or tree, e.g. "Clients 1-2 of 17".
func (l *listPageArgs) title(noun string, shown, count int) string {
	if l.pageSize <= 0 {
		return fmt.Sprintf("%s 1-%d of %d", noun, count, count)
	}
	first := (l.page-1)*l.pageSize + 1
	last := l.page * l.pageSize
	if last > count {
		last = count
	}
	if shown == 0 {
		// an out-of-range page; show an empty span rather than lying
		first, last = 0, 0
	}
	return fmt.Sprintf("%s %d-%d of %d", noun, first, last, count)
}

// writeTable prints a tab-aligned table under a title line. Cells must not
// contain tabs or newlines; callers render values with renderValue.
func writeTable(w io.Writer, title string, header []string, rows [][]string) {
	fmt.Fprintln(w, title)
	tw := tabwriter.NewWriter(w, 0, 8, 1, '\t', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// writeFields prints one row as aligned "name: value" lines, for the show
// commands.
func writeFields(w io.Writer, pairs [][2]string) {
	tw := tabwriter.NewWriter(w, 0, 8, 1, '\t', 0)
	for _, p := range pairs {
		fmt.Fprintf(tw, "%s:\t%s\n", p[0], p[1])
	}
	_ = tw.Flush()
}

// treeNode is one line of an indented tree; children render two spaces
// deeper. Insertion order is kept, so groupings appear in row order.
type treeNode struct {
	label    string
	children []*treeNode
}

func (n *treeNode) add(label string) *treeNode {
	child := &treeNode{label: label}
	n.children = append(n.children, child)
	return child
}

func writeTree(w io.Writer, title string, roots []*treeNode) {
	fmt.Fprintln(w, title)
	var walk func(nodes []*treeNode, depth int)
	walk = func(nodes []*treeNode, depth int) {
		for _, node := range nodes {
			fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), node.label)
			walk(node.children, depth+1)
		}
	}
	walk(roots, 0)
}

// renderPaths flattens an upload_paths or retrieved_paths map to one line,
// sorted by relative path. Nil values are directories.
func renderPaths(paths map[string]*string) string {
	if len(paths) == 0 {
		return "-"
	}
	rels := make([]string, 0, len(paths))
	for rel := range paths {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	parts := make([]string, 0, len(rels))
	for _, rel := range rels {
		if key := paths[rel]; key != nil {
			parts = append(parts, fmt.Sprintf("%s <- %s", rel, *key))
		} else {
			parts = append(parts, rel+" <- (directory)")
		}
	}
	return strings.Join(parts, ", ")
}

// indentLines prefixes every line of a block, for multi-line fields like
// scripts.
func indentLines(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// plural spells counts the way the status report reads them: "1 client",
// "3 codes".
func plural(count int, singular string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %ss", count, singular)
}
