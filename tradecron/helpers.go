// Copyright 2021-2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tradecron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	ErrConflictingModifiers = errors.New("conflicting modifiers")
	ErrUnknownModifier      = errors.New("unknown modifier")
	ErrMalformedTimeSpec    = errors.New("malformed time spec")
	ErrFieldOutOfBounds     = errors.New("field out of bounds")
)

// expandBriefFormat fills fields omitted for brevity with wildcards
func expandBriefFormat(spec string) []string {
	tokens := strings.Fields(spec)

	special := 0
	for _, token := range tokens {
		if token[0] == '@' {
			special++
		}
	}

	expectedLength := 5 + special
	for len(tokens) < expectedLength {
		tokens = append(tokens, "*")
	}

	return tokens
}

func parseOffset(token, name string) (int, error) {
	if token == "*" {
		return 0, nil
	}
	val, err := strconv.Atoi(token)
	if err != nil {
		log.Error().Str(name, token).Msg("could not parse offset token")
		return 0, ErrMalformedTimeSpec
	}
	return val, nil
}

// parseTimeRelativeTo treats the minute and hour tokens as an offset from
// hours:minutes
func parseTimeRelativeTo(tokens []string, hours int, minutes int) (string, error) {
	mins, err := parseOffset(tokens[0], "MinutesToken")
	if err != nil {
		return "", err
	}
	hrs, err := parseOffset(tokens[1], "HoursToken")
	if err != nil {
		return "", err
	}

	total := (hrs+hours)*60 + mins + minutes
	if total < 0 || total >= 24*60 {
		return "", ErrFieldOutOfBounds
	}

	return fmt.Sprintf("%d %d %s %s %s", total%60, total/60, tokens[2], tokens[3], tokens[4]), nil
}

func isWildcard(token string) bool {
	return token == "*" || strings.HasPrefix(token, "*/")
}
