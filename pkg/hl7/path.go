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
package hl7

import (
	"strconv"
	"strings"

	"github.com/teradata-labs/li/pkg/lierr"
)

// pathSpec is a parsed field path. SegmentRep and Field are 1-based and
// always set (SegmentRep defaults to 1); FieldRep, Component, and Sub are
// 0 when absent.
type pathSpec struct {
	Segment    string
	SegmentRep int
	Field      int
	FieldRep   int
	Component  int
	Sub        int
}

// parsePath parses `SEG[(rep)]-field[(rep)][.comp[.sub]]`.
func parsePath(path string) (pathSpec, error) {
	spec := pathSpec{SegmentRep: 1}

	dash := strings.IndexByte(path, '-')
	if dash < 0 {
		return spec, lierr.Validationf("field path %q missing '-'", path)
	}
	segPart, fieldPart := path[:dash], path[dash+1:]

	seg, segRep, err := splitRep(segPart)
	if err != nil {
		return spec, lierr.Validationf("field path %q: %v", path, err)
	}
	if len(seg) != 3 {
		return spec, lierr.Validationf("field path %q: segment name must be 3 letters", path)
	}
	spec.Segment = strings.ToUpper(seg)
	if segRep > 0 {
		spec.SegmentRep = segRep
	}

	parts := strings.Split(fieldPart, ".")
	if len(parts) > 3 {
		return spec, lierr.Validationf("field path %q: too many '.' parts", path)
	}

	fieldStr, fieldRep, err := splitRep(parts[0])
	if err != nil {
		return spec, lierr.Validationf("field path %q: %v", path, err)
	}
	spec.Field, err = atoiPositive(fieldStr)
	if err != nil {
		return spec, lierr.Validationf("field path %q: bad field index", path)
	}
	spec.FieldRep = fieldRep

	if len(parts) > 1 {
		spec.Component, err = atoiPositive(parts[1])
		if err != nil {
			return spec, lierr.Validationf("field path %q: bad component index", path)
		}
	}
	if len(parts) > 2 {
		spec.Sub, err = atoiPositive(parts[2])
		if err != nil {
			return spec, lierr.Validationf("field path %q: bad subcomponent index", path)
		}
	}
	return spec, nil
}

// splitRep splits a "name(rep)" token. rep is 0 when absent.
func splitRep(token string) (string, int, error) {
	open := strings.IndexByte(token, '(')
	if open < 0 {
		return token, 0, nil
	}
	if !strings.HasSuffix(token, ")") {
		return "", 0, strconv.ErrSyntax
	}
	rep, err := atoiPositive(token[open+1 : len(token)-1])
	if err != nil {
		return "", 0, err
	}
	return token[:open], rep, nil
}

func atoiPositive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
