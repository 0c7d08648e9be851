package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/mcache"
	"github.com/unkn0wn-root/mcache/internal/util"
)

func newGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Get value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c mcache.Cache[string]) error {
				v, ok, err := c.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "(miss)")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
}

func newSetCommand(a *app) *cobra.Command {
	var ttl string
	cmd := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set key to value",
		Long:  "Set key to value. An elapsed --ttl (0 or negative) deletes the key.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTTLFlag(cmd, ttl)
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, c mcache.Cache[string]) error {
				ok, err := c.Set(ctx, args[0], args[1], t)
				if err != nil {
					return err
				}
				if mcache.NormalizeTTL(t, time.Now()) <= -1 {
					fmt.Fprintln(cmd.OutOrStdout(), deletedLabel(ok))
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), storedLabel(ok))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ttl, "ttl", "", "lifetime: seconds, ISO-8601 (PT10M) or Go duration (10m); unset = no expiry")
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [key]",
		Short: "Delete key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c mcache.Cache[string]) error {
				ok, err := c.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), deletedLabel(ok))
				return nil
			})
		},
	}
}

func newHasCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "has [key]",
		Short: "Report whether key is present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c mcache.Cache[string]) error {
				ok, err := c.Has(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

func newGetMultiCommand(a *app) *cobra.Command {
	var def string
	cmd := &cobra.Command{
		Use:   "get-multi [key...]",
		Short: "Get values for many keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c mcache.Cache[string]) error {
				es, err := c.GetMultiple(ctx, args, def)
				if err != nil {
					return err
				}
				for _, e := range es {
					mark := ""
					if !e.Hit {
						mark = " (miss)"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s%s\n", e.Key, e.Value, mark)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&def, "default", "", "value reported for missing keys")
	return cmd
}

func newSetMultiCommand(a *app) *cobra.Command {
	var ttl string
	cmd := &cobra.Command{
		Use:   "set-multi [key=value...]",
		Short: "Set many keys with one lifetime",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTTLFlag(cmd, ttl)
			if err != nil {
				return err
			}
			values := make(map[string]string, len(args))
			for _, kv := range args {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("%w: %q is not key=value", mcache.ErrInvalidInput, kv)
				}
				values[k] = v
			}
			return a.run(cmd, func(ctx context.Context, c mcache.Cache[string]) error {
				ok, err := c.SetMultiple(ctx, values, t)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), storedLabel(ok))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ttl, "ttl", "", "lifetime for every key; unset = no expiry")
	return cmd
}

func newDeleteMultiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-multi [key...]",
		Short: "Delete many keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c mcache.Cache[string]) error {
				ok, err := c.DeleteMultiple(ctx, args)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), deletedLabel(ok))
				return nil
			})
		},
	}
}

func newClearCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Flush every server in the pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("clear flushes every key on every server; pass --yes to confirm")
			}
			return a.run(cmd, func(ctx context.Context, c mcache.Cache[string]) error {
				ok, err := c.Clear(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), lo.Ternary(ok, "OK", "FAILED"))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm flushing the pool")
	return cmd
}

func newServersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List servers registered with the pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c mcache.Cache[string]) error {
				servers, err := c.Servers(ctx)
				if err != nil {
					return err
				}
				for _, s := range servers {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tweight=%d\n", util.HostPort(s.Host, s.Port), s.Weight)
				}
				return nil
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcachectl version %s\n", version)
		},
	}
}

func parseTTLFlag(cmd *cobra.Command, raw string) (mcache.TTL, error) {
	if !cmd.Flags().Changed("ttl") {
		return mcache.TTL{}, nil
	}
	return mcache.ParseTTL(raw)
}

func storedLabel(ok bool) string  { return lo.Ternary(ok, "STORED", "NOT_STORED") }
func deletedLabel(ok bool) string { return lo.Ternary(ok, "DELETED", "NOT_FOUND") }
