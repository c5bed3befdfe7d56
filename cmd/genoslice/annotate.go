package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"genomatrix/internal/projection"
	"genomatrix/pkg/domain"
)

func newAnnotateCmd(open opener) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "annotate <matrix>",
		Short: "Attach external sample fields from a tab-separated file",
		Long: `Reads a tab-separated file whose header names the sample id column first
and one external field per following column. The fields replace any previously
attached to the matrix and can be used by the *_BY_EXTERNAL_FIELD pick cases.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseMatrixArg(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open fields file: %w", err)
			}
			defer func() { _ = f.Close() }()
			return withApp(cmd, open, func(a *app) error {
				src, err := a.store.OpenMatrix(cmd.Context(), key)
				if err != nil {
					return err
				}
				defer func() { _ = src.Close() }()
				infos, err := projection.Collect(src.Samples().Metadata())
				if err != nil {
					return err
				}
				index := make(map[string]domain.SampleInfo, len(infos))
				orig := make(map[string]int, len(infos))
				for i, info := range infos {
					index[info.Key.SampleID] = info
					orig[info.Key.SampleID] = i
				}
				records, err := readSampleFields(f, func(id string) (domain.SampleKey, int, bool) {
					info, ok := index[id]
					return info.Key, orig[id], ok
				})
				if err != nil {
					return err
				}
				if err := a.catalog.PutSampleFields(cmd.Context(), key, records); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "annotated %d samples of %s\n", len(records), key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "tab-separated fields file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readSampleFields parses the annotation file. Unknown sample ids fail the whole
// file.
func readSampleFields(r io.Reader, lookup func(id string) (domain.SampleKey, int, bool)) ([]domain.SampleFieldRecord, error) {
	sc := bufio.NewScanner(r)
	var (
		header  []string
		records []domain.SampleFieldRecord
		line    int
	)
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cols := strings.Split(text, "\t")
		if header == nil {
			if len(cols) < 2 {
				return nil, fmt.Errorf("fields line %d: header needs a sample column and at least one field", line)
			}
			header = cols
			continue
		}
		if len(cols) != len(header) {
			return nil, fmt.Errorf("fields line %d: expected %d columns, got %d", line, len(header), len(cols))
		}
		key, idx, ok := lookup(strings.TrimSpace(cols[0]))
		if !ok {
			return nil, fmt.Errorf("fields line %d: %w", line, domain.ErrNotFound{Entity: domain.EntitySample, Key: cols[0]})
		}
		fields := make(map[string]string, len(cols)-1)
		for i := 1; i < len(cols); i++ {
			fields[strings.TrimSpace(header[i])] = strings.TrimSpace(cols[i])
		}
		records = append(records, domain.SampleFieldRecord{Sample: key, OrigIndex: idx, Fields: fields})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
