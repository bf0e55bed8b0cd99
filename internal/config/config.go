// Package config loads pzmanager settings and watches server profile files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/pzmanager/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "PZMANAGER_"

var durationType = reflect.TypeFor[time.Duration]()

// option is one settable field of an options struct.
type option struct {
	value reflect.Value
	flag  string
	key   string // dotted TOML path
	env   string
}

// LoadConfig fills opts, a pointer to a flat options struct, from the TOML
// file named by its Config field and from PZMANAGER_* environment
// variables. Env beats the file; flags changed on cmd beat both.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: want pointer to struct, got %T", opts)
	}
	v = v.Elem()

	var file map[string]any
	if path := v.FieldByName("Config"); path.IsValid() && path.Kind() == reflect.String {
		var err error
		if file, err = readTOML(path.String()); err != nil {
			return err
		}
	}

	changed := changedFlags(cmd)
	for _, o := range options(v) {
		if changed[o.flag] {
			continue
		}
		if raw := lookup(file, o.key); raw != nil {
			assign(o.value, raw)
		}
		if o.env == "" {
			continue
		}
		if s := os.Getenv(EnvPrefix + o.env); s != "" {
			assign(o.value, s)
		}
	}
	return nil
}

// readTOML decodes path into a generic table. A missing file yields nil.
func readTOML(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var table map[string]any
	if err := toml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return table, nil
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	return changed
}

func options(v reflect.Value) []option {
	t := v.Type()
	out := make([]option, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		out = append(out, option{
			value: v.Field(i),
			flag:  flagName(f.Name),
			key:   f.Tag.Get("toml"),
			env:   f.Tag.Get("env"),
		})
	}
	return out
}

// flagName turns a field name into its kebab-case flag, so
// "ForceKillTimeout" becomes "force-kill-timeout" and "NATSEnabled"
// becomes "nats-enabled".
func flagName(field string) string {
	runes := []rune(field)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !unicode.IsUpper(prev) || nextLower {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookup walks a dotted path through nested tables.
func lookup(table map[string]any, path string) any {
	if path == "" {
		return nil
	}
	var cur any = table
	for part := range strings.SplitSeq(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// assign stores raw into field. raw is either a decoded TOML value or an
// environment string; values that do not fit the field are ignored.
// Integer durations are seconds.
func assign(field reflect.Value, raw any) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		switch x := raw.(type) {
		case string:
			if d, err := time.ParseDuration(x); err == nil {
				field.SetInt(int64(d))
			}
		case int64:
			field.SetInt(x * int64(time.Second))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := raw.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		switch x := raw.(type) {
		case bool:
			field.SetBool(x)
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				field.SetBool(b)
			}
		}
	case reflect.Int, reflect.Int64:
		switch x := raw.(type) {
		case int64:
			field.SetInt(x)
		case string:
			if n, err := strconv.ParseInt(x, 10, 64); err == nil {
				field.SetInt(n)
			}
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		var items []string
		switch x := raw.(type) {
		case []any:
			for _, item := range x {
				if s, ok := item.(string); ok {
					items = append(items, s)
				}
			}
		case string:
			for part := range strings.SplitSeq(x, ",") {
				items = append(items, strings.TrimSpace(part))
			}
		}
		field.Set(reflect.ValueOf(items))
	}
}

// LoadLoggingConfig reads the [logging] table of configPath for commands
// that run without the daemon's option struct. Module levels may sit
// directly under [logging] or in [logging.modules]. Read errors yield
// the defaults.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	file, err := readTOML(configPath)
	if err != nil {
		return cfg
	}
	section, _ := file["logging"].(map[string]any)

	for key, raw := range section {
		switch value := raw.(type) {
		case string:
			switch key {
			case "level":
				cfg.Level = value
			case "format":
				cfg.Format = value
			default:
				cfg.Modules[key] = value
			}
		case int64:
			if key == "buffer_size" {
				cfg.BufferSize = int(value)
			}
		case map[string]any:
			if key != "modules" {
				continue
			}
			for module, level := range value {
				if s, ok := level.(string); ok {
					cfg.Modules[module] = s
				}
			}
		}
	}
	return cfg
}
