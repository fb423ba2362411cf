// Package flagx lets several components share os.Args, each parsing only the
// flags it owns.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// flagName strips one or two leading dashes. The second return is false for
// tokens that are not flags, including the "--" terminator.
func flagName(arg string) (string, bool) {
	if len(arg) < 2 || arg[0] != '-' || arg == "--" {
		return "", false
	}
	name := strings.TrimPrefix(arg[1:], "-")
	if name == "" {
		return "", false
	}
	return name, true
}

// FilterArgs keeps the arguments that belong to the flags in allowed and drops
// everything else. Names match with either one or two dashes, so "-c" in
// allowed also keeps "--c". Values may be attached ("-c=x") or follow as the
// next token; a following token that starts with '-' is never taken as a
// value. Scanning stops at "--".
func FilterArgs(args []string, allowed []string) []string {
	names := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if n, ok := flagName(a); ok {
			names[n] = struct{}{}
		}
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}

		name, ok := flagName(arg)
		if !ok {
			continue
		}
		name, _, attached := strings.Cut(name, "=")
		if _, known := names[name]; !known {
			continue
		}

		out = append(out, arg)
		if attached {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

// ConfigPath returns the JSON config file named by -c or -config in args, or
// "" when neither is given. The last occurrence wins.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return path
}
