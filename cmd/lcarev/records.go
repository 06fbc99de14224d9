package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hylla/lcarev/internal/app"
	"github.com/hylla/lcarev/internal/domain"
	"github.com/hylla/lcarev/internal/revision"
	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"
)

// revisionFlags holds the provenance flags of mutating commands.
type revisionFlags struct {
	author  string
	title   string
	message string
}

// bind registers the provenance flags on cmd.
func (f *revisionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.author, "author", "", "revision authors (defaults to revisions.default_authors)")
	cmd.Flags().StringVar(&f.title, "title", "", "revision title")
	cmd.Flags().StringVarP(&f.message, "message", "m", "", "revision description")
}

// context attaches the provenance flags to ctx.
func (f *revisionFlags) context(ctx context.Context) context.Context {
	return app.WithRevisionInfo(ctx, app.RevisionInfo{
		Authors:     f.author,
		Title:       f.title,
		Description: f.message,
	})
}

// showFlags selects how a record is printed.
type showFlags struct {
	dump bool
}

func (f *showFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dump, "dump", false, "print the Go value instead of JSON")
}

// newActivityCommand groups activity subcommands.
func newActivityCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Create, update and inspect activities",
	}

	var (
		in              domain.ActivityInput
		nodeType        string
		classifications []string
		rev             revisionFlags
	)
	put := &cobra.Command{
		Use:   "put",
		Short: "Create or update an activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseClassifications(classifications)
			if err != nil {
				return err
			}
			in.Type = domain.NodeType(nodeType)
			in.Classifications = parsed
			return opts.withRuntime("activity put", func(env *runtimeEnv) error {
				a, r, err := env.svc.SaveActivity(rev.context(cmd.Context()), in)
				if err != nil {
					return err
				}
				return printSaved(cmd.OutOrStdout(), "activity", a.ID, r)
			})
		},
	}
	put.Flags().Int64Var(&in.ID, "id", 0, "activity id (allocated when zero)")
	put.Flags().StringVar(&in.Database, "database", "", "database name")
	put.Flags().StringVar(&in.Code, "code", "", "activity code")
	put.Flags().StringVar(&in.Name, "name", "", "activity name")
	put.Flags().StringVar(&in.Location, "location", "", "location code")
	put.Flags().StringVar(&in.Unit, "unit", "", "reference unit")
	put.Flags().StringVar(&nodeType, "type", string(domain.DefaultNodeType), "node type")
	put.Flags().StringVar(&in.ReferenceProduct, "reference-product", "", "reference product name")
	put.Flags().Float64Var(&in.ProductionAmount, "amount", 0, "production amount")
	put.Flags().StringVar(&in.Comment, "comment", "", "free text comment")
	put.Flags().StringArrayVar(&in.Categories, "category", nil, "category path segment (repeatable)")
	put.Flags().StringArrayVar(&in.Synonyms, "synonym", nil, "synonym (repeatable)")
	put.Flags().StringArrayVar(&classifications, "classification", nil, "classification as system=value (repeatable)")
	rev.bind(put)

	var show showFlags
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return opts.withRuntime("activity show", func(env *runtimeEnv) error {
				a, err := env.svc.GetActivity(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), show, a, domain.ActivityPlain(a))
			})
		},
	}
	show.bind(showCmd)

	list := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("activity list", func(env *runtimeEnv) error {
				activities, err := env.svc.ListActivities(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(activities))
				for _, a := range activities {
					rows = append(rows, []string{strconv.FormatInt(a.ID, 10), a.Key().String(), a.Name, a.Location, a.Unit})
				}
				return printTable(cmd.OutOrStdout(), []string{"ID", "KEY", "NAME", "LOCATION", "UNIT"}, rows)
			})
		},
	}

	cmd.AddCommand(put, showCmd, list)
	return cmd
}

// newExchangeCommand groups exchange subcommands.
func newExchangeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Create, update and inspect exchanges",
	}

	var (
		in            domain.ExchangeInput
		input, output string
		exchangeType  string
		properties    []string
		rev           revisionFlags
	)
	put := &cobra.Command{
		Use:   "put",
		Short: "Create or update an exchange",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if in.Input, err = parseKey(input); err != nil {
				return fmt.Errorf("--input: %w", err)
			}
			if in.Output, err = parseKey(output); err != nil {
				return fmt.Errorf("--output: %w", err)
			}
			if in.Properties, err = parseProperties(properties); err != nil {
				return err
			}
			in.Type = domain.ExchangeType(exchangeType)
			return opts.withRuntime("exchange put", func(env *runtimeEnv) error {
				e, r, err := env.svc.SaveExchange(rev.context(cmd.Context()), in)
				if err != nil {
					return err
				}
				return printSaved(cmd.OutOrStdout(), "exchange", e.ID, r)
			})
		},
	}
	put.Flags().Int64Var(&in.ID, "id", 0, "exchange id (allocated when zero)")
	put.Flags().StringVar(&input, "input", "", "input activity key as database/code")
	put.Flags().StringVar(&output, "output", "", "output activity key as database/code")
	put.Flags().StringVar(&exchangeType, "type", string(domain.ExchangeTechnosphere), "exchange type")
	put.Flags().Float64Var(&in.Amount, "amount", 0, "exchange amount")
	put.Flags().StringVar(&in.Unit, "unit", "", "exchange unit")
	put.Flags().StringVar(&in.Comment, "comment", "", "free text comment")
	put.Flags().IntVar(&in.Uncertainty.Type, "uncertainty-type", 0, "uncertainty distribution id")
	put.Flags().Float64Var(&in.Uncertainty.Loc, "loc", 0, "uncertainty location")
	put.Flags().Float64Var(&in.Uncertainty.Scale, "scale", 0, "uncertainty scale")
	put.Flags().Float64Var(&in.Uncertainty.Shape, "shape", 0, "uncertainty shape")
	put.Flags().Float64Var(&in.Uncertainty.Minimum, "minimum", 0, "uncertainty minimum")
	put.Flags().Float64Var(&in.Uncertainty.Maximum, "maximum", 0, "uncertainty maximum")
	put.Flags().StringToInt64Var(&in.Pedigree, "pedigree", nil, "pedigree scores as name=score")
	put.Flags().StringArrayVar(&properties, "property", nil, "property as name=value (repeatable)")
	rev.bind(put)

	var show showFlags
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return opts.withRuntime("exchange show", func(env *runtimeEnv) error {
				e, err := env.svc.GetExchange(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), show, e, domain.ExchangePlain(e))
			})
		},
	}
	show.bind(showCmd)

	list := &cobra.Command{
		Use:   "list",
		Short: "List exchanges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("exchange list", func(env *runtimeEnv) error {
				exchanges, err := env.svc.ListExchanges(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(exchanges))
				for _, e := range exchanges {
					rows = append(rows, []string{
						strconv.FormatInt(e.ID, 10),
						e.Input.String(),
						e.Output.String(),
						string(e.Type),
						strconv.FormatFloat(e.Amount, 'g', -1, 64),
					})
				}
				return printTable(cmd.OutOrStdout(), []string{"ID", "INPUT", "OUTPUT", "TYPE", "AMOUNT"}, rows)
			})
		},
	}

	cmd.AddCommand(put, showCmd, list)
	return cmd
}

// newMethodCommand groups impact method subcommands.
func newMethodCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "method",
		Short: "Create, update and inspect impact methods",
	}

	var (
		in  app.MethodInput
		rev revisionFlags
	)
	put := &cobra.Command{
		Use:   "put",
		Short: "Create or update an impact method",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("method put", func(env *runtimeEnv) error {
				m, r, err := env.svc.SaveMethod(rev.context(cmd.Context()), in)
				if err != nil {
					return err
				}
				return printSaved(cmd.OutOrStdout(), "method", m.ID, r)
			})
		},
	}
	put.Flags().Int64Var(&in.ID, "id", 0, "method id (allocated when zero)")
	put.Flags().StringArrayVar(&in.Name, "name", nil, "method name segment (repeatable, in order)")
	put.Flags().StringVar(&in.Unit, "unit", "", "characterization unit")
	put.Flags().StringVar(&in.Description, "description", "", "method description")
	put.Flags().StringVar(&in.Abbreviation, "abbreviation", "", "override the generated abbreviation")
	rev.bind(put)

	var show showFlags
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one impact method",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return opts.withRuntime("method show", func(env *runtimeEnv) error {
				m, err := env.svc.GetMethod(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), show, m, domain.MethodPlain(m))
			})
		},
	}
	show.bind(showCmd)

	list := &cobra.Command{
		Use:   "list",
		Short: "List impact methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("method list", func(env *runtimeEnv) error {
				methods, err := env.svc.ListMethods(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(methods))
				for _, m := range methods {
					rows = append(rows, []string{strconv.FormatInt(m.ID, 10), m.DisplayName(), m.Unit, m.Abbreviation})
				}
				return printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "UNIT", "ABBREVIATION"}, rows)
			})
		},
	}

	cmd.AddCommand(put, showCmd, list)
	return cmd
}

// printSaved reports the record id and the revision a save produced.
func printSaved(out io.Writer, kind string, id int64, rev revision.Revision) error {
	if rev.ID() == 0 {
		_, err := fmt.Fprintf(out, "%s %d unchanged\n", kind, id)
		return err
	}
	_, err := fmt.Fprintf(out, "%s %d saved in revision %s\n", kind, id, rev.ID())
	return err
}

// printRecord writes a record as indented JSON, or as a Go value dump.
func printRecord(out io.Writer, flags showFlags, record any, plain revision.Plain) error {
	if flags.dump {
		_, err := io.WriteString(out, litter.Sdump(record)+"\n")
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(plain)
}

// parseRecordID parses a positive record id argument.
func parseRecordID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", raw)
	}
	return id, nil
}

// parseKey parses a database/code activity key.
func parseKey(raw string) (domain.Key, error) {
	database, code, ok := strings.Cut(strings.TrimSpace(raw), "/")
	key := domain.Key{Database: strings.TrimSpace(database), Code: strings.TrimSpace(code)}
	if !ok || !key.Valid() {
		return domain.Key{}, fmt.Errorf("invalid key %q, want database/code", raw)
	}
	return key, nil
}

// parseClassifications parses system=value pairs.
func parseClassifications(raw []string) ([]domain.Classification, error) {
	out := make([]domain.Classification, 0, len(raw))
	for _, item := range raw {
		system, value, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(system) == "" {
			return nil, fmt.Errorf("invalid classification %q, want system=value", item)
		}
		out = append(out, domain.Classification{System: strings.TrimSpace(system), Value: strings.TrimSpace(value)})
	}
	return out, nil
}

// parseProperties parses name=value pairs with numeric values.
func parseProperties(raw []string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for _, item := range raw {
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid property %q, want name=value", item)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid property %q: %w", item, err)
		}
		out[name] = v
	}
	return out, nil
}
