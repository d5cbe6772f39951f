package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/weave/pkg/closure"
	"github.com/itsneelabh/weave/pkg/logger"
)

type options struct {
	program string
	entries []string
	list    string
	asJSON  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "weave-closure",
		Short:         "Compute and verify the weaver bootstrap closure",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.program, "program", "p", "", "program description (.yaml or .json)")
	root.PersistentFlags().StringArrayVarP(&opts.entries, "entry", "e", nil, "entry method as Owner.name(desc); overrides the program's entries")
	_ = root.MarkPersistentFlagRequired("program")

	compute := &cobra.Command{
		Use:   "compute",
		Short: "Print the computed closure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := run(cmd, opts)
			if err != nil {
				return err
			}
			names := types.Sorted()
			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(names)
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	compute.Flags().BoolVar(&opts.asJSON, "json", false, "print a JSON array")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Fail unless the preinitialize list equals the computed closure",
		Long: `verify compares the preinitialize list, taken from --list or from the
program's preinitialize field, with the computed closure. Any type missing
from the list or listed without being needed is reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := run(cmd, opts)
			if err != nil {
				return err
			}
			expected, err := expectedList(opts)
			if err != nil {
				return err
			}
			if err := closure.Verify(expected, types); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "preinitialize list matches closure (%d types)\n", len(types))
			return nil
		},
	}
	verify.Flags().StringVarP(&opts.list, "list", "l", "", "preinitialize list file, one type per line")

	root.AddCommand(compute, verify)
	return root
}

func run(cmd *cobra.Command, opts *options) (closure.TypeSet, error) {
	log := logger.NewFromEnv("weave-closure")

	prog, err := closure.LoadProgram(opts.program)
	if err != nil {
		return nil, err
	}
	entries := prog.Entries
	if len(opts.entries) > 0 {
		entries = entries[:0:0]
		for _, e := range opts.entries {
			ref, err := parseEntry(e)
			if err != nil {
				return nil, err
			}
			entries = append(entries, ref)
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entry points: set entries in %s or pass --entry", opts.program)
	}

	types, err := closure.Closure(cmd.Context(), entries, prog)
	if err != nil {
		return nil, err
	}
	log.Debug("Closure computed",
		"program", opts.program,
		"classes", len(prog.Classes),
		"entries", len(entries),
		"types", len(types))
	return types, nil
}

func expectedList(opts *options) ([]string, error) {
	if opts.list != "" {
		return closure.LoadList(opts.list)
	}
	prog, err := closure.LoadProgram(opts.program)
	if err != nil {
		return nil, err
	}
	if prog.Preinitialize == nil {
		return nil, fmt.Errorf("no preinitialize list: set preinitialize in %s or pass --list", opts.program)
	}
	return prog.Preinitialize, nil
}

// parseEntry splits "pkg.Owner.name(desc)".
func parseEntry(s string) (closure.MethodRef, error) {
	paren := strings.IndexByte(s, '(')
	if paren < 0 {
		return closure.MethodRef{}, fmt.Errorf("invalid entry %q: missing descriptor", s)
	}
	head, desc := s[:paren], s[paren:]
	dot := strings.LastIndexByte(head, '.')
	if dot <= 0 || dot == len(head)-1 {
		return closure.MethodRef{}, fmt.Errorf("invalid entry %q: want Owner.name(desc)", s)
	}
	return closure.MethodRef{Owner: head[:dot], Name: head[dot+1:], Desc: desc}, nil
}
