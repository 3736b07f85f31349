package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/autom8ter/masedb"
	"github.com/autom8ter/masedb/embedded"
	"github.com/autom8ter/masedb/errors"
	"github.com/autom8ter/masedb/transport/rest"
	"github.com/autom8ter/masedb/util"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

type senderFlags struct {
	provider    string
	storagePath string
	baseURL     string
	apiKey      string
	configPath  string
}

func (f *senderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "badger", "embedded key value provider")
	cmd.Flags().StringVar(&f.storagePath, "storage-path", "", "embedded storage path (empty for in-memory)")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "MaseDB api url; when set operations are sent over http instead of to the embedded store")
	cmd.Flags().StringVar(&f.apiKey, "api-key", os.Getenv("MASEDB_API_KEY"), "MaseDB api key")
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "client config file (yaml or json)")
}

func (f *senderFlags) client() (*masedb.Client, error) {
	var sender masedb.Sender
	if f.baseURL != "" {
		cfg := rest.DefaultConfig(f.apiKey)
		cfg.BaseURL = f.baseURL
		s, err := rest.New(cfg)
		if err != nil {
			return nil, err
		}
		sender = s
	} else {
		s, err := embedded.Open(f.provider, map[string]any{"storage_path": f.storagePath})
		if err != nil {
			return nil, err
		}
		sender = s
	}
	var opts []masedb.Opt
	if f.configPath != "" {
		cfg, err := masedb.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, masedb.WithConfig(cfg))
	}
	return masedb.New(sender, opts...)
}

func runCmd() *cobra.Command {
	var (
		flags    senderFlags
		file     string
		rollback bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "stage the operations in a yaml or json file in one transaction, commit it and print its status",
		Long: `The file holds a list of operations:

operations:
  - collection: users
    insert: {"name": "Ann", "age": 30}
  - collection: users
    update: {"filter": {"name": "Ann"}, "update": {"$inc": {"age": 1}}}
  - collection: users
    delete: {"filter": {"age": {"$lt": 18}}}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bits, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrap(err, errors.Validation, "failed to read %s", file)
			}
			ops, err := parseOperations(bits)
			if err != nil {
				return err
			}
			ctx := context.Background()
			client, err := flags.client()
			if err != nil {
				return err
			}
			defer client.Close(ctx)
			tx, err := client.Begin(ctx)
			if err != nil {
				return err
			}
			for _, op := range ops {
				if _, err := tx.Stage(ctx, op.Collection, op.Operation); err != nil {
					return err
				}
			}
			if rollback {
				err = tx.Rollback(ctx)
			} else {
				err = tx.Commit(ctx)
			}
			status, _ := json.MarshalIndent(tx.Status(), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(status))
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "operations file")
	cmd.MarkFlagRequired("file")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "stage the operations then roll back without sending them")
	return cmd
}

type fileOperation struct {
	Collection string
	Operation  masedb.Operation
}

func parseOperations(content []byte) ([]fileOperation, error) {
	jsonContent, err := util.YAMLToJSON(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "invalid operations file")
	}
	var (
		ops      []fileOperation
		parseErr error
	)
	gjson.GetBytes(jsonContent, "operations").ForEach(func(key, value gjson.Result) bool {
		op, err := parseOperation(value)
		if err != nil {
			parseErr = errors.Wrap(err, "", "operation %d", key.Int())
			return false
		}
		ops = append(ops, op)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(ops) == 0 {
		return nil, errors.New(errors.Validation, "no operations found")
	}
	return ops, nil
}

func parseOperation(value gjson.Result) (fileOperation, error) {
	op := fileOperation{Collection: value.Get("collection").String()}
	filter := func(path string) (*masedb.Filter, error) {
		raw := value.Get(path)
		if !raw.Exists() {
			return masedb.NewFilter(nil)
		}
		return masedb.ParseFilter([]byte(raw.Raw))
	}
	switch {
	case value.Get("insert").Exists():
		doc, err := masedb.NewDocumentFromBytes([]byte(value.Get("insert").Raw))
		if err != nil {
			return op, err
		}
		op.Operation = masedb.Insert(doc)
	case value.Get("update").Exists():
		f, err := filter("update.filter")
		if err != nil {
			return op, err
		}
		u, err := masedb.ParseUpdate([]byte(value.Get("update.update").Raw))
		if err != nil {
			return op, err
		}
		op.Operation = masedb.UpdateWhere(f, u)
	case value.Get("delete").Exists():
		f, err := filter("delete.filter")
		if err != nil {
			return op, err
		}
		op.Operation = masedb.Delete(f)
	default:
		return op, errors.New(errors.Validation, "expected one of insert, update or delete")
	}
	return op, nil
}
