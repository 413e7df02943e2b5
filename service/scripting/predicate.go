/*
 * @module service/scripting/predicate
 * @description Compiles user supplied Go snippets into consequent item predicates
 * @architecture Infrastructure layer - embedded Yaegi interpreter with a compile cache
 * @stateFlow script body -> wrapped Match function -> interpreter eval -> cached predicate -> per-item verdicts
 * @rules Scripts see attribute, value and item as strings and must return a bool;
 *        every call runs under a deadline, and a panic or timeout becomes an error, never a crash;
 *        scripts are treated as pure: each item is evaluated once per compiled predicate
 * @dependencies github.com/traefik/yaegi
 * @refs service/association/rule_ranker.go
 */

package scripting

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

const wrapper = `
package main

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	_ = regexp.MustCompile
	_ = strconv.Atoi
	_ = strings.HasPrefix
)

func Match(item, attribute, value string) bool {
	_, _, _ = item, attribute, value
%s
}
`

// DefaultTimeout bounds one predicate call.
const DefaultTimeout = 250 * time.Millisecond

// ErrTimeout is returned when a script does not decide an item in time.
var ErrTimeout = errors.New("scripting: predicate timed out")

// Compiler compiles and caches predicate scripts by content hash.
type Compiler struct {
	mu      sync.RWMutex
	cache   map[string]association.ItemPredicate
	timeout time.Duration
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithTimeout bounds each predicate call; d <= 0 keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Compiler) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCompiler creates an empty compiler.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{cache: make(map[string]association.ItemPredicate), timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile returns the predicate for script, compiling it on first use.
// Example script: return attribute == "road_user" && value != "Other"
func (c *Compiler) Compile(script string) (association.ItemPredicate, error) {
	hash := fmt.Sprintf("%x", sha1.Sum([]byte(script)))

	c.mu.RLock()
	pred, ok := c.cache[hash]
	c.mu.RUnlock()
	if ok {
		return pred, nil
	}

	p, err := compile(script)
	if err != nil {
		return nil, err
	}
	p.timeout = c.timeout

	c.mu.Lock()
	defer c.mu.Unlock()
	if pred, ok := c.cache[hash]; ok {
		return pred, nil
	}
	c.cache[hash] = p.match
	return p.match, nil
}

// Validate compile-checks script without caching it. Runtime failures only
// show up when the predicate is applied.
func (c *Compiler) Validate(script string) error {
	_, err := compile(script)
	return err
}

// Len returns the number of cached predicates.
func (c *Compiler) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// predicate evaluates Match inside its own interpreter. Calls are serialised
// since an interpreter runs one evaluation at a time.
type predicate struct {
	mu       sync.Mutex
	interp   *interp.Interpreter
	timeout  time.Duration
	verdicts map[association.Item]bool
}

func compile(script string) (*predicate, error) {
	i := interp.New(interp.Options{Stderr: io.Discard})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("scripting: load stdlib symbols: %w", err)
	}
	if _, err := i.Eval(fmt.Sprintf(wrapper, script)); err != nil {
		return nil, fmt.Errorf("scripting: compile predicate: %w", err)
	}

	v, err := i.Eval("Match")
	if err != nil {
		return nil, fmt.Errorf("scripting: predicate has no Match function: %w", err)
	}
	if _, ok := v.Interface().(func(string, string, string) bool); !ok {
		return nil, fmt.Errorf("scripting: Match must be func(item, attribute, value string) bool")
	}
	return &predicate{interp: i, timeout: DefaultTimeout, verdicts: make(map[association.Item]bool)}, nil
}

func (p *predicate) match(it association.Item) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok, seen := p.verdicts[it]; seen {
		return ok, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	call := fmt.Sprintf("Match(%s, %s, %s)",
		strconv.Quote(string(it)), strconv.Quote(it.Attribute()), strconv.Quote(it.Value()))
	v, err := p.interp.EvalWithContext(ctx, call)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return false, fmt.Errorf("%w after %s", ErrTimeout, p.timeout)
	case err != nil:
		var pe interp.Panic
		if errors.As(err, &pe) {
			return false, fmt.Errorf("scripting: predicate panicked: %v", pe.Value)
		}
		return false, fmt.Errorf("scripting: evaluate predicate: %w", err)
	}
	if !v.IsValid() {
		return false, errors.New("scripting: Match returned no value")
	}
	ok, isBool := v.Interface().(bool)
	if !isBool {
		return false, fmt.Errorf("scripting: Match returned %T, want bool", v.Interface())
	}
	p.verdicts[it] = ok
	return ok, nil
}
