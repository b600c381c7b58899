package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// commandPath returns the command names from the root down to c.
func commandPath(c *cobra.Command) []string {
	if !c.HasParent() {
		return []string{c.Name()}
	}
	return append(commandPath(c.Parent()), c.Name())
}

// flagAttribute converts a set flag into a `command.flag.<name>` attribute.
// Types without a typed getter are recorded as their string form.
func flagAttribute(flags *pflag.FlagSet, f *pflag.Flag) (attribute.KeyValue, error) {
	k := "command.flag." + f.Name
	switch f.Value.Type() {
	case "bool":
		v, err := flags.GetBool(f.Name)
		return attribute.Bool(k, v), err
	case "int":
		v, err := flags.GetInt(f.Name)
		return attribute.Int(k, v), err
	case "float64":
		v, err := flags.GetFloat64(f.Name)
		return attribute.Float64(k, v), err
	case "string":
		v, err := flags.GetString(f.Name)
		return attribute.String(k, v), err
	case "stringSlice":
		v, err := flags.GetStringSlice(f.Name)
		return attribute.StringSlice(k, v), err
	default:
		return attribute.String(k, f.Value.String()), nil
	}
}

// setSpanAttributes records the command path and every flag the user set.
func setSpanAttributes(cmd *cobra.Command, span trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.StringSlice("command.path", commandPath(cmd)),
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		attr, err := flagAttribute(cmd.Flags(), f)
		if err != nil {
			log.Warnw("Reading flag for telemetry", "flag", f.Name, "value", f.Value, "err", err)
			return
		}
		attrs = append(attrs, attr)
	})
	span.SetAttributes(attrs...)
}
