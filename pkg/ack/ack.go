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

// Package ack evaluates reply-code action rules for outbound
// operations: a comma-separated rule list such as "?R=F,?E=S,*=S" maps
// the acknowledgement code of a delivery reply to the action the
// operation takes.
package ack

import (
	"strings"

	"github.com/teradata-labs/li/pkg/lierr"
)

// Action is the operation's response to a matched reply code.
type Action byte

const (
	// ActionSuccess treats the reply as a successful delivery.
	ActionSuccess Action = 'S'
	// ActionFail treats the reply as a permanent failure.
	ActionFail Action = 'F'
	// ActionRetry re-queues the message for another attempt.
	ActionRetry Action = 'R'
	// ActionWarn logs a warning and otherwise treats the reply as a
	// success.
	ActionWarn Action = 'W'
)

// String returns the single-letter rule form of the action.
func (a Action) String() string { return string(rune(a)) }

type rule struct {
	pattern string
	action  Action
}

// Rules is a parsed, ordered reply-code action list. Evaluation is
// first match wins.
type Rules struct {
	rules []rule
}

// DefaultRules treats every reply as a success.
var DefaultRules = Rules{rules: []rule{{pattern: "*", action: ActionSuccess}}}

var knownCodes = map[string]bool{
	"AA": true, "AE": true, "AR": true,
	"CA": true, "CE": true, "CR": true,
}

// Parse compiles a rule list. Each rule is <pattern>=<action> where
// pattern is an exact code (AA, AE, AR, CA, CE, CR), a wildcard class
// (?A, ?E, ?R matching either commit or accept variants of the final
// letter), or * matching everything; a leading ':' on a pattern is
// accepted and ignored. Actions are S, F, R, W. An empty string yields
// the default *=S.
func Parse(s string) (Rules, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultRules, nil
	}

	var out Rules
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pattern, action, found := strings.Cut(part, "=")
		if !found {
			return Rules{}, lierr.Configf("reply code rule %q: missing '='", part)
		}
		pattern = strings.TrimSpace(pattern)
		// Configuration surfaces also write patterns with a leading
		// colon, ":?R=F,:?E=S,:*=S".
		pattern = strings.TrimPrefix(pattern, ":")
		action = strings.TrimSpace(action)

		switch {
		case pattern == "*":
		case len(pattern) == 2 && pattern[0] == '?':
			switch pattern[1] {
			case 'A', 'E', 'R':
			default:
				return Rules{}, lierr.Configf("reply code rule %q: unknown class %q", part, pattern)
			}
		case knownCodes[pattern]:
		default:
			return Rules{}, lierr.Configf("reply code rule %q: unknown pattern %q", part, pattern)
		}

		if len(action) != 1 {
			return Rules{}, lierr.Configf("reply code rule %q: unknown action %q", part, action)
		}
		switch Action(action[0]) {
		case ActionSuccess, ActionFail, ActionRetry, ActionWarn:
		default:
			return Rules{}, lierr.Configf("reply code rule %q: unknown action %q", part, action)
		}

		out.rules = append(out.rules, rule{pattern: pattern, action: Action(action[0])})
	}
	if len(out.rules) == 0 {
		return DefaultRules, nil
	}
	return out, nil
}

// MustParse is Parse for rule literals known to be valid.
func MustParse(s string) Rules {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Evaluate returns the action for a reply code. The first matching
// rule wins; a code matching no rule is a success, mirroring the
// default rule list.
func (r Rules) Evaluate(code string) Action {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, ru := range r.rules {
		if ru.matches(code) {
			return ru.action
		}
	}
	return ActionSuccess
}

func (ru rule) matches(code string) bool {
	switch {
	case ru.pattern == "*":
		return true
	case ru.pattern[0] == '?':
		return len(code) == 2 && code[1] == ru.pattern[1]
	default:
		return code == ru.pattern
	}
}

// String reassembles the rule list in its configuration form.
func (r Rules) String() string {
	parts := make([]string, 0, len(r.rules))
	for _, ru := range r.rules {
		parts = append(parts, ru.pattern+"="+ru.action.String())
	}
	return strings.Join(parts, ",")
}
