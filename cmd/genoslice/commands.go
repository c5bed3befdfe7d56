package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"genomatrix/internal/extract"
	"genomatrix/internal/infra/source/chunked"
	"genomatrix/internal/loader"
	"genomatrix/pkg/domain"
)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "genoslice",
		Short:        "Import genotype matrices and extract marker and sample subsets",
		SilenceUsage: true,
	}
	root.AddCommand(
		newImportCmd(open),
		newExtractCmd(open),
		newListCmd(open),
		newShowCmd(open),
		newAnnotateCmd(open),
		newDeleteCmd(open),
	)
	return root
}

// withApp opens the backends for the duration of fn.
func withApp(cmd *cobra.Command, open opener, fn func(a *app) error) (err error) {
	a, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func newImportCmd(open opener) *cobra.Command {
	var (
		study, id, mapPath, pedPath string
		in                          loader.Input
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a PLINK MAP/PED fileset as a new matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" {
				id = uuid.NewString()
			}
			key := domain.MatrixKey{StudyID: study, MatrixID: id}
			in.Map = loader.FileOpener(mapPath)
			in.Ped = loader.FileOpener(pedPath)
			return withApp(cmd, open, func(a *app) error {
				l := loader.New(loader.WithMatrixRecorder(a.catalog))
				meta, err := l.Load(cmd.Context(), key, in, chunked.NewDestination(a.store))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s: %d markers, %d samples, encoding %s\n",
					meta.DataSetKey(), meta.MarkerCount, meta.SampleCount, meta.Encoding)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&study, "study", "", "study id of the new matrix")
	f.StringVar(&id, "id", "", "matrix id (generated when empty)")
	f.StringVar(&mapPath, "map", "", "PLINK .map file")
	f.StringVar(&pedPath, "ped", "", "PLINK .ped file")
	f.StringVar(&in.Name, "name", "", "friendly name")
	f.StringVar(&in.Description, "description", "", "free-text description")
	for _, name := range []string{"study", "map", "ped"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// request is the YAML form of an extraction.
type request struct {
	Parent         string `yaml:"parent"`
	extract.Params `yaml:",inline"`
}

func readRequest(path string, stdin io.Reader) (extract.Params, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return extract.Params{}, fmt.Errorf("open request: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var req request
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return extract.Params{}, fmt.Errorf("decode request: %w", err)
	}
	parent, err := domain.ParseDataSetKey(req.Parent)
	if err != nil {
		return extract.Params{}, err
	}
	p := req.Params
	p.Parent = parent
	return p, nil
}

type extractSummary struct {
	Outcome   string `yaml:"outcome"`
	Matrix    string `yaml:"matrix,omitempty"`
	Operation string `yaml:"operation,omitempty"`
	Markers   int    `yaml:"markers"`
	Samples   int    `yaml:"samples"`
}

func newExtractCmd(open opener) *cobra.Command {
	var (
		path          string
		derive, stats bool
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract a marker and sample subset described by a YAML request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := readRequest(path, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app) error {
				var (
					res extract.Result
					op  domain.OperationMetadata
				)
				if derive {
					res, op, err = a.extractor.Derive(cmd.Context(), p)
				} else {
					res, err = a.extractor.Extract(cmd.Context(), p, chunked.NewDestination(a.store))
				}
				if err != nil {
					return err
				}
				summary := extractSummary{
					Outcome: res.Outcome.String(),
					Markers: len(res.MarkerOrigIndices),
					Samples: len(res.SampleOrigIndices),
				}
				if !res.Key.IsZero() {
					summary.Matrix = res.Key.String()
				}
				if op.Key.ID != "" {
					summary.Operation = domain.NewOperationDataSetKey(op.Key).String()
				}
				if err := yaml.NewEncoder(cmd.OutOrStdout()).Encode(summary); err != nil {
					return err
				}
				if stats {
					return writeMetrics(cmd.ErrOrStderr(), a)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&path, "file", "f", "-", "request file, - for stdin")
	f.BoolVar(&derive, "derive", false, "record a filter operation instead of writing a new matrix")
	f.BoolVar(&stats, "metrics", false, "print extraction metrics to stderr")
	return cmd
}

func writeMetrics(w io.Writer, a *app) error {
	families, err := a.metrics.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func newListCmd(open opener) *cobra.Command {
	var operations string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored matrices, or the operations of one matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(a *app) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				if operations != "" {
					key, err := parseMatrixArg(operations)
					if err != nil {
						return err
					}
					ops, err := a.catalog.ListOperations(cmd.Context(), key)
					if err != nil {
						return err
					}
					fmt.Fprintln(tw, "OPERATION\tTYPE\tPARENT\tMARKERS\tSAMPLES\tNAME")
					for _, op := range ops {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", domain.NewOperationDataSetKey(op.Key), op.Type, op.Parent(),
							countOrAll(op.MarkerIndices), countOrAll(op.SampleIndices), op.FriendlyName)
					}
					return tw.Flush()
				}
				fmt.Fprintln(tw, "MATRIX\tMARKERS\tSAMPLES\tENCODING\tPARENT\tNAME")
				for _, m := range a.catalog.ListMatrices() {
					parent := "-"
					if m.Parent != nil {
						parent = m.Parent.String()
					}
					fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n", m.DataSetKey(), m.MarkerCount, m.SampleCount, m.Encoding, parent, m.FriendlyName)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&operations, "operations", "", "list operations rooted at this matrix (matrix:<study>/<id>)")
	return cmd
}

func countOrAll(indices []int) string {
	if indices == nil {
		return "all"
	}
	return fmt.Sprint(len(indices))
}

func newShowCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <dataset>",
		Short: "Print the metadata and lineage of a matrix or operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := domain.ParseDataSetKey(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app) error {
				out := map[string]any{}
				if key.IsMatrix() {
					m, ok := a.catalog.GetMatrix(key.Matrix)
					if !ok {
						return domain.ErrNotFound{Entity: domain.EntityMatrix, Key: key.Matrix.String()}
					}
					out["matrix"] = m
				} else {
					op, ok := a.catalog.GetOperation(key.Operation)
					if !ok {
						return domain.ErrNotFound{Entity: domain.EntityOperation, Key: key.Operation.String()}
					}
					out["operation"] = op
				}
				lineage, err := a.catalog.Lineage(cmd.Context(), key)
				if err != nil {
					return err
				}
				names := make([]string, len(lineage))
				for i, k := range lineage {
					names[i] = k.String()
				}
				out["lineage"] = names
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
}

func newDeleteCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <matrix>",
		Short: "Delete a stored matrix that nothing derives from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseMatrixArg(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app) error {
				if err := a.catalog.DeleteMatrix(cmd.Context(), key); err != nil {
					return err
				}
				n, err := a.store.Delete(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("delete blobs of %s: %w", key, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (%d blobs)\n", key, n)
				return nil
			})
		},
	}
}

func parseMatrixArg(s string) (domain.MatrixKey, error) {
	key, err := domain.ParseDataSetKey(s)
	if err != nil {
		return domain.MatrixKey{}, err
	}
	if !key.IsMatrix() {
		return domain.MatrixKey{}, fmt.Errorf("%s is not a matrix key", s)
	}
	return key.Matrix, nil
}
