package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// ParamDelimiter marks a parameter segment.
	ParamDelimiter = ':'

	// DefaultParamPattern is used by parameter segments without a bracketed
	// pattern. It matches any non-empty segment.
	DefaultParamPattern = ".+"

	pathRoot = "/"
)

// Action is the handler and ordered middleware list stored for a path and
// method.
type Action struct {
	Handler     HandlerFunc
	Middlewares []Middleware
	Pattern     string
}

type trieNode struct {
	label    string
	children map[string]*trieNode
	params   []*paramEdge
	actions  map[string]*Action
}

// paramEdge is a parameter child. Edges are kept in registration order and
// tried in that order during search.
type paramEdge struct {
	token   string
	key     string
	matcher *regexp.Regexp
	node    *trieNode
}

func newTrieNode(label string) *trieNode {
	return &trieNode{
		label:    label,
		children: make(map[string]*trieNode),
		actions:  make(map[string]*Action),
	}
}

// PathTrie is a segment-keyed route tree.
//
// A PathTrie is built by Insert during a single-threaded setup phase and is
// read-only afterwards. Insert must not run concurrently with Search.
type PathTrie struct {
	root  *trieNode
	cache *PatternCache
}

// NewPathTrie creates an empty trie compiling parameter patterns through cache.
func NewPathTrie(cache *PatternCache) *PathTrie {
	if cache == nil {
		cache = NewPatternCache()
	}
	return &PathTrie{
		root:  newTrieNode(pathRoot),
		cache: cache,
	}
}

// Insert registers handler and middlewares for every method at path. An
// existing action for the same path and method is replaced.
func (t *PathTrie) Insert(methods []string, path string, handler HandlerFunc, middlewares []Middleware) error {
	if len(methods) == 0 {
		return ErrEmptyMethods
	}
	if handler == nil {
		return ErrNilHandler
	}
	if !strings.HasPrefix(path, pathRoot) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	curr := t.root
	if path != pathRoot {
		for _, seg := range splitPath(path) {
			next, err := t.child(curr, seg)
			if err != nil {
				return err
			}
			curr = next
		}
	}

	if middlewares == nil {
		middlewares = []Middleware{}
	}
	for _, m := range methods {
		curr.actions[strings.ToUpper(m)] = &Action{
			Handler:     handler,
			Middlewares: middlewares,
			Pattern:     path,
		}
	}

	return nil
}

// child returns the node reached from n by seg, creating it if needed.
func (t *PathTrie) child(n *trieNode, seg string) (*trieNode, error) {
	if !isParam(seg) {
		if c, ok := n.children[seg]; ok {
			return c, nil
		}
		c := newTrieNode(seg)
		n.children[seg] = c
		return c, nil
	}

	for _, e := range n.params {
		if e.token == seg {
			return e.node, nil
		}
	}

	key, pattern, err := parseParam(seg)
	if err != nil {
		return nil, err
	}
	matcher, err := t.cache.Get(pattern)
	if err != nil {
		return nil, fmt.Errorf("segment %q: %w", seg, err)
	}

	e := &paramEdge{
		token:   seg,
		key:     key,
		matcher: matcher,
		node:    newTrieNode(seg),
	}
	n.params = append(n.params, e)

	return e.node, nil
}

// Search resolves method and path against the trie. Literal children are
// preferred over parameter children; among parameter children the first
// registered one whose pattern fully matches the segment wins, with no
// backtracking into later edges.
//
// A leaf stops the walk when the next segment repeats its own label, so
// with "/a/b" registered "/a/b/b" resolves to "/a/b". Any other segment
// past a leaf is NotFound.
func (t *PathTrie) Search(method, path string) SearchResult {
	curr := t.root
	segs := splitPath(path)
	var params []Param

	for _, seg := range segs {
		if c, ok := curr.children[seg]; ok {
			curr = c
			continue
		}

		if curr.isLeaf() {
			if seg != curr.label {
				return SearchResult{Status: NotFound}
			}
			break
		}

		var next *trieNode
		for _, e := range curr.params {
			if e.matcher.MatchString(seg) {
				params = append(params, Param{Key: e.key, Value: seg})
				next = e.node
				break
			}
		}
		if next == nil {
			return SearchResult{Status: NotFound}
		}
		curr = next
	}

	// Only the root can be reached without being a route. Any other
	// matched node answers MethodNotAllowed, possibly with no methods.
	if len(segs) == 0 && len(curr.actions) == 0 {
		return SearchResult{Status: NotFound}
	}

	action, ok := curr.actions[strings.ToUpper(method)]
	if !ok {
		return SearchResult{Status: MethodNotAllowed, Allowed: curr.allowed()}
	}

	return SearchResult{Status: Found, Action: action, Params: params}
}

func (n *trieNode) isLeaf() bool {
	return len(n.children) == 0 && len(n.params) == 0
}

func (n *trieNode) allowed() []string {
	methods := make([]string, 0, len(n.actions))
	for m := range n.actions {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// splitPath splits path on '/' and drops empty components, so "/a//b/"
// yields ["a", "b"] and "/" yields nothing.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

func isParam(seg string) bool {
	return len(seg) > 0 && seg[0] == ParamDelimiter
}

// parseParam splits ":key[pattern]" into its key and pattern. The pattern
// spans from the first '[' to the last ']', so it may contain brackets.
func parseParam(seg string) (key, pattern string, err error) {
	body := seg[1:]

	open := strings.IndexByte(body, '[')
	if open < 0 {
		if body == "" {
			return "", "", fmt.Errorf("%w: %q: empty parameter name", ErrInvalidPattern, seg)
		}
		return body, DefaultParamPattern, nil
	}

	key = body[:open]
	if key == "" {
		return "", "", fmt.Errorf("%w: %q: empty parameter name", ErrInvalidPattern, seg)
	}
	if !strings.HasSuffix(body, "]") || len(body)-1 <= open {
		return "", "", fmt.Errorf("%w: %q: unterminated pattern", ErrInvalidPattern, seg)
	}

	pattern = body[open+1 : len(body)-1]
	if pattern == "" {
		return "", "", fmt.Errorf("%w: %q: empty pattern", ErrInvalidPattern, seg)
	}

	return key, pattern, nil
}
