// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package rules

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/teradata-labs/li/pkg/lierr"
)

// Action is what a matched rule does with the message.
type Action string

const (
	// ActionSend forwards the message to the rule's targets.
	ActionSend Action = "send"
	// ActionTransform applies the named transform before sending.
	ActionTransform Action = "transform"
	// ActionDelete drops the message.
	ActionDelete Action = "delete"
)

// Validation controls how a rule reports condition evaluation errors.
type Validation string

const (
	ValidationNone  Validation = "none"
	ValidationWarn  Validation = "warn"
	ValidationError Validation = "error"
)

// Rule is one routing rule. Rules evaluate in ascending Priority order
// (ties keep configuration order) and the first match wins.
type Rule struct {
	Name       string
	Priority   int
	Condition  string
	Action     Action
	Targets    []string
	Transform  string
	Validation Validation
	Disabled   bool

	expr Expr
}

// Decision is the outcome of routing one message.
type Decision struct {
	Rule      string
	Action    Action
	Targets   []string
	Transform string
	// Default marks a decision produced by the fallback rule rather
	// than a configured match.
	Default bool
}

// EngineConfig describes a routing engine.
type EngineConfig struct {
	Rules []Rule

	// DefaultTargets receive messages no rule matched. Empty means an
	// unmatched message is a routing error.
	DefaultTargets []string

	Logger *zap.Logger
}

// Engine routes messages through an ordered rule list.
type Engine struct {
	rules          []Rule
	defaultTargets []string
	logger         *zap.Logger
}

// NewEngine compiles every rule condition and fixes the evaluation
// order. A rule with an action other than delete must name at least
// one target.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	rules := make([]Rule, 0, len(cfg.Rules))
	for i, r := range cfg.Rules {
		if r.Disabled {
			continue
		}
		if r.Name == "" {
			return nil, lierr.Configf("rule %d: name is required", i)
		}
		if r.Action == "" {
			r.Action = ActionSend
		}
		switch r.Action {
		case ActionSend, ActionTransform, ActionDelete:
		default:
			return nil, lierr.Configf("rule %q: unknown action %q", r.Name, r.Action)
		}
		if r.Action != ActionDelete && len(r.Targets) == 0 {
			return nil, lierr.Configf("rule %q: action %q requires targets", r.Name, r.Action)
		}
		if r.Action == ActionTransform && r.Transform == "" {
			return nil, lierr.Configf("rule %q: transform action requires a transform name", r.Name)
		}
		if r.Validation == "" {
			r.Validation = ValidationNone
		}

		expr, err := Compile(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.expr = expr
		rules = append(rules, r)
	}

	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		rules:          rules,
		defaultTargets: cfg.DefaultTargets,
		logger:         logger,
	}, nil
}

// Route evaluates the rules against one message and returns the first
// match. With no match and no default targets it fails with
// NoMatchError.
func (e *Engine) Route(r FieldResolver) (Decision, error) {
	for i := range e.rules {
		rule := &e.rules[i]
		ok, err := rule.expr.Eval(r)
		if err != nil {
			switch rule.Validation {
			case ValidationError:
				return Decision{}, fmt.Errorf("%w: rule %q: %v", lierr.ErrValidationFailed, rule.Name, err)
			case ValidationWarn:
				e.logger.Warn("rule condition failed to evaluate",
					zap.String("rule", rule.Name),
					zap.Error(err))
			}
			continue
		}
		if !ok {
			continue
		}
		return Decision{
			Rule:      rule.Name,
			Action:    rule.Action,
			Targets:   rule.Targets,
			Transform: rule.Transform,
		}, nil
	}

	if len(e.defaultTargets) > 0 {
		return Decision{
			Rule:    "default",
			Action:  ActionSend,
			Targets: e.defaultTargets,
			Default: true,
		}, nil
	}
	return Decision{}, fmt.Errorf("%w: no rule matched", lierr.ErrNoMatch)
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
