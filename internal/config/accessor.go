package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Paths address config fields by their JSON names joined with dots, for
// example "server.auth.enabled" or "phone.countryCode".

// GetByPath returns the value at path. Sections come back as structs.
func GetByPath(cfg *Config, path string) (any, error) {
	v, err := lookupField(reflect.ValueOf(cfg).Elem(), path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// SetByPath parses raw according to the type of the field at path and
// stores it. Only leaf fields can be set.
func SetByPath(cfg *Config, path, raw string) error {
	v, err := lookupField(reflect.ValueOf(cfg).Elem(), path)
	if err != nil {
		return err
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", path, raw)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("%s expects an integer, got %q", path, raw)
		}
		v.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("%s expects a number, got %q", path, raw)
		}
		v.SetFloat(f)
	case reflect.Struct:
		return fmt.Errorf("%s is a section; set one of its fields", path)
	default:
		return fmt.Errorf("%s has unsupported type %s", path, v.Type())
	}
	return nil
}

// ListPaths returns every leaf path with its current value, including
// fields left empty.
func ListPaths(cfg *Config) map[string]any {
	out := make(map[string]any)
	collectLeaves("", reflect.ValueOf(cfg).Elem(), out)
	return out
}

// SortedPaths returns the keys of ListPaths in order.
func SortedPaths(paths map[string]any) []string {
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func lookupField(v reflect.Value, path string) (reflect.Value, error) {
	if path == "" {
		return reflect.Value{}, fmt.Errorf("empty path")
	}
	for _, key := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("cannot traverse into %s at %q in %s", v.Type(), key, path)
		}
		i := fieldIndex(v.Type(), key)
		if i < 0 {
			return reflect.Value{}, fmt.Errorf("key not found: %s", path)
		}
		v = v.Field(i)
	}
	return v, nil
}

// fieldIndex finds the exported field whose JSON name is key.
func fieldIndex(t reflect.Type, key string) int {
	for i := 0; i < t.NumField(); i++ {
		if name := jsonName(t.Field(i)); name != "" && name == key {
			return i
		}
	}
	return -1
}

func jsonName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

func collectLeaves(prefix string, v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := jsonName(t.Field(i))
		if name == "" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if fv := v.Field(i); fv.Kind() == reflect.Struct {
			collectLeaves(name, fv, out)
		} else {
			out[name] = fv.Interface()
		}
	}
}

// Sanitize returns a copy of cfg with credentials masked.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return cfg
	}
	for _, secret := range []*string{&out.WhatsApp.AccessToken, &out.WhatsApp.AppSecret, &out.WhatsApp.VerifyToken} {
		if *secret != "" {
			*secret = maskString(*secret)
		}
	}
	if out.Server.Auth.PasswordHash != "" {
		out.Server.Auth.PasswordHash = "***"
	}
	return &out
}

// maskString keeps the first and last four characters.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
