// Command html2json converts an HTML document into a structural JSON
// tree. Input comes from a file path argument or stdin; output goes to
// stdout.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// Node is one element or text node of the parsed document.
type Node struct {
	Tag        string            `json:"tag,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Text       string            `json:"text,omitempty"`
	Children   []*Node           `json:"children,omitempty"`
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "html2json: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	input := stdin
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		input = f
	}

	root, err := html.Parse(input)
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	tree := convert(root)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tree)
}

// convert maps the html.Node tree onto Node, dropping comments,
// doctypes and whitespace-only text.
func convert(n *html.Node) *Node {
	switch n.Type {
	case html.DocumentNode:
		// The document node itself has no tag; surface its first
		// element child (usually <html>) as the root.
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if child := convert(c); child != nil {
				return child
			}
		}
		return nil
	case html.ElementNode:
		node := &Node{Tag: n.Data}
		if len(n.Attr) > 0 {
			node.Attributes = make(map[string]string, len(n.Attr))
			for _, a := range n.Attr {
				node.Attributes[a.Key] = a.Val
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if child := convert(c); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text == "" {
			return nil
		}
		return &Node{Text: text}
	default:
		return nil
	}
}
