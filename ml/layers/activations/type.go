/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package activations

import (
	"fmt"
	"strings"
)

// Type is an enum for the supported activation functions.
//
// It is converted to snake-format strings (e.g.: TypeRelu -> "relu"), and can be converted
// from string by using TypeString.
type Type int

const (
	TypeNone Type = iota
	TypeRelu
	TypeSigmoid
	TypeTanh
	TypeSoftmax
)

var typeNames = [...]string{
	TypeNone:    "none",
	TypeRelu:    "relu",
	TypeSigmoid: "sigmoid",
	TypeTanh:    "tanh",
	TypeSoftmax: "softmax",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// TypeString retrieves an enum value from the enum constants string name.
// It is case-insensitive. It returns an error if the param is not part of the enum.
func TypeString(s string) (Type, error) {
	for ii, name := range typeNames {
		if strings.EqualFold(name, s) {
			return Type(ii), nil
		}
	}
	return 0, fmt.Errorf("%s does not belong to Type values", s)
}

// TypeValues returns all values of the enum.
func TypeValues() []Type {
	values := make([]Type, len(typeNames))
	for ii := range values {
		values[ii] = Type(ii)
	}
	return values
}

// MarshalText implements the encoding.TextMarshaler interface for Type.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface for Type.
func (t *Type) UnmarshalText(text []byte) error {
	var err error
	*t, err = TypeString(string(text))
	return err
}
