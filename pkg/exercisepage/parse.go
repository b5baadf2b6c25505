package exercisepage

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is an exercise or feedback page returned by an exercise service.
type Page struct {
	URL        string `json:"url"`
	IsLoaded   bool   `json:"is_loaded"`
	Head       string `json:"head"`
	Content    string `json:"content"`
	IsAccepted bool   `json:"is_accepted"`
	IsWaiting  bool   `json:"is_waiting"`
	IsRejected bool   `json:"is_rejected"`
	HasPoints  bool   `json:"has_points"`
	Points     int    `json:"points"`
	MaxPoints  int    `json:"max_points"`

	// FilesToSubmit names the files the submission form must carry.
	FilesToSubmit []string `json:"files_to_submit,omitempty"`
	Launch        *Launch  `json:"launch,omitempty"`
}

// Launch is a signed form the browser posts to start an external tool.
type Launch struct {
	URL        string            `json:"url"`
	Title      string            `json:"title"`
	Parameters map[string]string `json:"parameters"`
}

// ContentPolicy keeps exercise forms usable while stripping scripts and event handlers
// from the page body.
func ContentPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Globally()
	policy.AllowElements("form", "fieldset", "legend", "label", "input", "textarea", "select", "option", "button")
	policy.AllowAttrs("action", "method", "enctype").OnElements("form")
	policy.AllowAttrs("type", "name", "value", "placeholder", "checked", "selected", "multiple", "required", "rows", "cols", "for", "accept").
		OnElements("input", "textarea", "select", "option", "button", "label")
	return policy
}

// Parse reads an HTML document: the head children (title excluded), the element with
// id "exercise" or else the body, and the grading meta tags.
func Parse(r io.Reader, policy *bluemonday.Policy) (Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse page: %w", err)
	}

	page := Page{IsLoaded: true}
	head := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Head })
	if head != nil {
		var buf bytes.Buffer
		for child := head.FirstChild; child != nil; child = child.NextSibling {
			if child.DataAtom == atom.Title {
				continue
			}
			if child.DataAtom == atom.Meta {
				applyMeta(&page, child)
			}
			if err := html.Render(&buf, child); err != nil {
				return Page{}, fmt.Errorf("failed to render head: %w", err)
			}
		}
		page.Head = strings.TrimSpace(buf.String())
	}

	container := findFirst(doc, func(n *html.Node) bool { return attr(n, "id") == "exercise" })
	if container == nil {
		container = findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	}
	if container != nil {
		var buf bytes.Buffer
		for child := container.FirstChild; child != nil; child = child.NextSibling {
			if err := html.Render(&buf, child); err != nil {
				return Page{}, fmt.Errorf("failed to render content: %w", err)
			}
		}
		content := buf.String()
		if policy != nil {
			content = policy.Sanitize(content)
		}
		page.Content = strings.TrimSpace(content)
	}

	return page, nil
}

func applyMeta(page *Page, node *html.Node) {
	value := attr(node, "value")
	if value == "" {
		value = attr(node, "content")
	}
	value = strings.TrimSpace(value)

	switch strings.ToLower(attr(node, "name")) {
	case "status":
		switch strings.ToLower(value) {
		case "accepted":
			page.IsAccepted = true
		case "waiting":
			page.IsAccepted = true
			page.IsWaiting = true
		case "rejected":
			page.IsRejected = true
		}
	case "points":
		if points, err := strconv.Atoi(value); err == nil {
			page.Points = points
			page.HasPoints = true
		}
	case "max-points", "max_points":
		if maxPoints, err := strconv.Atoi(value); err == nil {
			page.MaxPoints = maxPoints
		}
	}
}

func findFirst(node *html.Node, match func(*html.Node) bool) *html.Node {
	if node.Type == html.ElementNode && match(node) {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(node *html.Node, key string) string {
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
