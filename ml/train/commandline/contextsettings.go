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

package commandline

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/redtea-ml/redtea/ml/context"
	"github.com/redtea-ml/redtea/ml/data"
)

// ParseContextSettings from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "param1=value1;param2=value2;...".
//
// All the parameters "param1", "param2", etc. must be already set with default values
// in the root scope of the context. The default values are also used to set the type to which the
// string values will be parsed to: values are decoded as JSON, except strings which are taken verbatim
// and slices which are given as comma-separated lists.
//
// It updates the context parameters accordingly, and returns the list of parameters set, or an error
// in case a parameter is unknown or the parsing failed.
//
// Scoped parameters are given with an absolute scope: "/lstm/hidden_size=16" will work, as long as a default
// "hidden_size" is defined in the root scope.
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// A setting "file:<path>" reads settings from the file, one or more per line. Empty lines and lines
// starting with "#" are ignored.
//
// Example usage:
//
//	func main() {
//		ctx := createDefaultContext()
//		settings := commandline.CreateContextSettingsFlag(ctx, "")
//		flag.Parse()
//		_, err := commandline.ParseContextSettings(ctx, *settings)
//		if err != nil { klog.Fatalf("%+v", err) }
//		fmt.Println(commandline.SprintContextSettings(ctx))
//		...
//	}
func ParseContextSettings(ctx *context.Context, settings string) (paramsSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		paramsSet, err = parseContextSetting(ctx, strings.TrimSpace(setting), paramsSet)
		if err != nil {
			return
		}
	}
	return
}

func parseContextSetting(ctx *context.Context, setting string, paramsSet []string) ([]string, error) {
	if setting == "" {
		return paramsSet, nil
	}
	if filePath, isFile := strings.CutPrefix(setting, "file:"); isFile {
		filePath = data.ReplaceTildeInDir(filePath)
		contents, err := os.ReadFile(filePath)
		if err != nil {
			return paramsSet, errors.Wrapf(err, "failed to read settings from file %q", filePath)
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			for _, lineSetting := range strings.Split(line, ";") {
				paramsSet, err = parseContextSetting(ctx, strings.TrimSpace(lineSetting), paramsSet)
				if err != nil {
					return paramsSet, errors.WithMessagef(err, "in settings file %q", filePath)
				}
			}
		}
		return paramsSet, nil
	}

	paramPath, valueStr, found := strings.Cut(setting, "=")
	if !found || strings.Contains(valueStr, "=") {
		return paramsSet, errors.Errorf("can't parse setting %q: each setting requires the format \"<param>=<value>\"", setting)
	}
	paramScope, paramName := splitScope(paramPath)
	if paramScope != "" && !strings.HasPrefix(paramScope, context.ScopeSeparator) {
		return paramsSet, errors.Errorf("can't set parameter %q because its scope is not absolute (it does not start with %q)",
			paramPath, context.ScopeSeparator)
	}
	defaultValue, found := ctx.GetParam(paramName)
	if !found {
		return paramsSet, errors.Errorf("can't set parameter %q because the param %q is not known in the root context",
			paramPath, paramName)
	}
	value, err := parseValue(valueStr, defaultValue)
	if err != nil {
		return paramsSet, errors.Wrapf(err, "failed to parse value %q for parameter %q (default value is %#v)",
			valueStr, paramPath, defaultValue)
	}
	ctxInScope := ctx
	if paramScope != "" {
		ctxInScope = ctx.InAbsPath(paramScope)
	}
	ctxInScope.SetParam(paramName, value)
	return append(paramsSet, paramPath), nil
}

// splitScope splits "/a/b/name" into ("/a/b", "name"). The scope is empty if there is no separator.
func splitScope(paramPath string) (scope, name string) {
	idx := strings.LastIndex(paramPath, context.ScopeSeparator)
	if idx < 0 {
		return "", paramPath
	}
	if idx == 0 {
		return context.RootScope, paramPath[1:]
	}
	return paramPath[:idx], paramPath[idx+1:]
}

// parseValue parses valueStr into a value of the same type as defaultValue.
func parseValue(valueStr string, defaultValue any) (any, error) {
	if defaultValue == nil {
		return nil, errors.New("parameter has no default value to infer its type")
	}
	valueType := reflect.TypeOf(defaultValue)
	switch valueType.Kind() {
	case reflect.String:
		return reflect.ValueOf(valueStr).Convert(valueType).Interface(), nil
	case reflect.Slice:
		slice := reflect.MakeSlice(valueType, 0, 0)
		if valueStr != "" {
			for _, part := range strings.Split(valueStr, ",") {
				elem, err := parseValue(strings.TrimSpace(part), reflect.Zero(valueType.Elem()).Interface())
				if err != nil {
					return nil, err
				}
				slice = reflect.Append(slice, reflect.ValueOf(elem))
			}
		}
		return slice.Interface(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		valueStr = strings.ReplaceAll(valueStr, "_", "")
	case reflect.Float32, reflect.Float64, reflect.Bool:
	default:
		return nil, errors.Errorf("don't know how to parse type %T", defaultValue)
	}
	ptr := reflect.New(valueType)
	if err := json.Unmarshal([]byte(valueStr), ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// CreateContextSettingsFlag defines a string flag named flagName ("set" if empty) that takes the
// settings parsed by ParseContextSettings. Its usage lists the root-scope hyperparameters of ctx, and
// their defaults.
//
// It must be called before flag.Parse.
func CreateContextSettingsFlag(ctx *context.Context, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	var usage strings.Builder
	usage.WriteString(`Hyperparameters settings, as "param=value" elements separated by ";". `+
		`Prefix a param with a scope path (e.g. "/lstm/hidden_size=4") to set it only in that scope, `+
		`or use "file:<path>" to read settings from a file. Hyperparameters and defaults:`)
	ctx.EnumerateParams(func(scope, key string, value any) {
		if scope == context.RootScope {
			fmt.Fprintf(&usage, "\n%q: default value is %v", key, value)
		}
	})
	return flag.String(flagName, "", usage.String())
}

// SprintContextSettings lists the hyperparameters of every scope, with their types and values.
func SprintContextSettings(ctx *context.Context) string {
	var sb strings.Builder
	sb.WriteString("Context hyperparameters:")
	ctx.EnumerateParams(func(scope, key string, value any) {
		sb.WriteString("\n\t")
		if scope != context.RootScope {
			fmt.Fprintf(&sb, "%q / ", scope)
		}
		fmt.Fprintf(&sb, "%q: (%T) %v", key, value, value)
	})
	return sb.String()
}
