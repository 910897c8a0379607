package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kevmodo/triton-go/internal/echo"
	"github.com/kevmodo/triton-go/internal/hostsim"
	"github.com/kevmodo/triton-go/pkg/tensor"
)

// buildRootCmd constructs the command tree: repository inspection, config
// checking, and a one-shot inference path through the echo engine.
func buildRootCmd() *cobra.Command {
	var (
		repoRoot string
		logLevel string
	)
	root := &cobra.Command{
		Use:           "backendctl",
		Short:         "Inspect model repositories and exercise the echo backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&repoRoot, "repository", "r", ".", "Model repository root directory")
	root.PersistentFlags().String("log-level", "warn", "Log level: debug|info|warn|error")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		lvl, err := zerolog.ParseLevel(cmd.Flags().Lookup("log-level").Value.String())
		if err != nil {
			return fmt.Errorf("log-level: %w", err)
		}
		logLevel = lvl.String()
		return nil
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List the models in the repository, including broken ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := hostsim.Scan(repoRoot)
			if err != nil {
				return err
			}
			entries := repo.Entries()
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no models found")
				return nil
			}
			for _, e := range entries {
				if e.Err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tBROKEN\t%v\n", e.Name, e.Err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tversion %d\t%d input(s), %d output(s)\n",
					e.Name, e.LatestVersion(), len(e.Config.Inputs), len(e.Config.Outputs))
			}
			return nil
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check <model>",
		Short: "Validate a model's configuration and print its schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := hostsim.Scan(repoRoot)
			if err != nil {
				return err
			}
			entry, err := repo.Model(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model:   %s (version %d)\n", entry.Name, entry.LatestVersion())
			fmt.Fprintf(out, "config:  %s\n", entry.ConfigPath)
			for _, s := range entry.Config.Inputs {
				fmt.Fprintf(out, "input:   %s %s %s\n", s.Name, s.DataType, s.Dims)
			}
			for _, s := range entry.Config.Outputs {
				fmt.Fprintf(out, "output:  %s %s %s\n", s.Name, s.DataType, s.Dims)
			}
			if len(entry.Config.Parameters) > 0 {
				names := make([]string, 0, len(entry.Config.Parameters))
				for name := range entry.Config.Parameters {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "param:   %s=%q\n", name, entry.Config.Parameters[name])
				}
			}
			return nil
		},
	}

	var inputs []string
	inferCmd := &cobra.Command{
		Use:     "infer <model>",
		Short:   "Load a model into the echo engine and run one request",
		Example: "  backendctl -r ./models infer test --input prompt=foo,bar,baz",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(inputs) == 0 {
				return fmt.Errorf("infer needs at least one --input name=elem[,elem...]")
			}
			repo, err := hostsim.Scan(repoRoot)
			if err != nil {
				return err
			}
			h := hostsim.New(repo, hostsim.Options{
				LogSink:    os.Stderr,
				Parameters: map[string]string{"log_level": logLevel},
			})
			if err := h.Start("echo", echo.New()); err != nil {
				return err
			}
			defer func() { _ = h.Shutdown() }()
			if err := h.Load(args[0]); err != nil {
				return err
			}

			req := hostsim.NewRequest("")
			for _, in := range inputs {
				name, val, ok := strings.Cut(in, "=")
				if !ok {
					return fmt.Errorf("malformed --input %q, want name=elem[,elem...]", in)
				}
				elems := strings.Split(val, ",")
				req.AddBytesInput(name, tensor.Shape{int64(len(elems))}, elems)
			}
			if err := h.Infer(args[0], []*hostsim.Request{req}); err != nil {
				return err
			}

			oc := req.Outcome()
			if oc == nil {
				return fmt.Errorf("request %s ended without an outcome", req.ID())
			}
			if oc.Err != nil {
				return fmt.Errorf("request %s failed: %s", req.ID(), oc.Err)
			}
			return printResponse(cmd, oc.Response)
		},
	}
	inferCmd.Flags().StringArrayVar(&inputs, "input", nil, "BYTES input as name=elem[,elem...]; repeatable")

	root.AddCommand(modelsCmd, checkCmd, inferCmd)
	return root
}

func printResponse(cmd *cobra.Command, resp *hostsim.CompletedResponse) error {
	out := cmd.OutOrStdout()
	for _, ot := range resp.Sorted() {
		if ot.DataType != tensor.Bytes {
			fmt.Fprintf(out, "%s %s %s: %d bytes\n", ot.Name, ot.DataType, ot.Shape, len(ot.Data))
			continue
		}
		elems, err := tensor.DecodeStrings(ot.Data)
		if err != nil {
			return fmt.Errorf("output %q: %w", ot.Name, err)
		}
		fmt.Fprintf(out, "%s %s %s: %s\n", ot.Name, ot.DataType, ot.Shape, strings.Join(elems, " | "))
	}
	return nil
}
