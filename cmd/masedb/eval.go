package main

import (
	"fmt"
	"io"

	"github.com/autom8ter/masedb"
	"github.com/autom8ter/masedb/errors"
	"github.com/spf13/cobra"
)

func evalCmd() *cobra.Command {
	var (
		filter string
		doc    string
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "evaluate a json filter against a json document (read from stdin when --doc is empty)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := masedb.ParseFilter([]byte(filter))
			if err != nil {
				return err
			}
			d, err := readDocument(cmd, doc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), f.Match(d))
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "{}", "json filter")
	cmd.Flags().StringVarP(&doc, "doc", "d", "", "json document")
	return cmd
}

func applyCmd() *cobra.Command {
	var (
		update string
		doc    string
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "apply a json update to a json document (read from stdin when --doc is empty) and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := masedb.ParseUpdate([]byte(update))
			if err != nil {
				return err
			}
			d, err := readDocument(cmd, doc)
			if err != nil {
				return err
			}
			next, err := u.Apply(d)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), next.String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&update, "update", "u", "", "json update")
	cmd.MarkFlagRequired("update")
	cmd.Flags().StringVarP(&doc, "doc", "d", "", "json document")
	return cmd
}

func readDocument(cmd *cobra.Command, doc string) (*masedb.Document, error) {
	if doc != "" {
		return masedb.NewDocumentFromBytes([]byte(doc))
	}
	bits, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to read document from stdin")
	}
	return masedb.NewDocumentFromBytes(bits)
}
