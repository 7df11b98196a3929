// Command gokv opens a store and runs one operation against it, or
// drops into an interactive REPL.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/ryogrid/gokv"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dataPath, walPath, configPath string

	cmd := &cobra.Command{
		Use:   "gokv",
		Short: "embedded transactional key-value store",
		Long:  "gokv opens a buffer-pool-cached, WAL-backed B-tree store and runs point operations against it.",
		Args:  cobra.NoArgs,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a JWCC config file (see gokv.LoadConfig); --data/--wal override its fields")
	cmd.PersistentFlags().StringVar(&dataPath, "data", "", "path to the data file (required unless --config sets dataPath)")
	cmd.PersistentFlags().StringVar(&walPath, "wal", "", "path to the write-ahead log (omit to disable the WAL)")

	open := func() (*gokv.Store, error) {
		var conf gokv.StoreConfig
		if configPath != "" {
			loaded, err := gokv.LoadConfig(configPath)
			if err != nil {
				return nil, err
			}
			conf = loaded
		} else {
			conf = gokv.DefaultStoreConfig()
		}
		if dataPath != "" {
			conf.DataPath = dataPath
		}
		if walPath != "" {
			conf.WALPath = walPath
		}
		if conf.DataPath == "" {
			return nil, fmt.Errorf("gokv: --data is required (or set dataPath in the --config file)")
		}
		return gokv.OpenStore(conf, gokv.NewLogger(), nil)
	}

	cmd.AddCommand(
		newPutCmd(open),
		newGetCmd(open),
		newRmCmd(open),
		newVerifyCmd(open),
		newDumpCmd(open),
		newReplCmd(open),
	)
	return cmd
}

type openFunc func() (*gokv.Store, error)

func newPutCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "insert or update a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			tx := store.StartTransaction()
			defer tx.Close()
			if err := tx.Put([]byte(args[0]), []byte(args[1])); err != nil {
				return err
			}
			return tx.Commit()
		},
	}
}

func newGetCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "look up a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			value, err := store.Get([]byte(args[0]))
			if err != nil {
				return err
			}
			if value == nil {
				return fmt.Errorf("key not found: %s", args[0])
			}
			fmt.Println(string(value))
			return nil
		},
	}
}

func newRmCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			tx := store.StartTransaction()
			defer tx.Close()
			if err := tx.Remove([]byte(args[0])); err != nil {
				return err
			}
			return tx.Commit()
		},
	}
}

func newVerifyCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "traverse the tree, checking ordering invariants, and print the live key count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			tx := store.StartTransaction()
			defer tx.Close()
			count, err := tx.Verify()
			if err != nil {
				return err
			}
			fmt.Printf("%d live keys\n", count)
			return tx.Rollback()
		},
	}
}

func newDumpCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "print every key and value, in ascending key order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			tx := store.StartTransaction()
			defer tx.Close()
			if err := tx.Dump(func(key, value []byte) error {
				_, err := fmt.Printf("%s\t%s\n", key, value)
				return err
			}); err != nil {
				return err
			}
			return tx.Rollback()
		},
	}
}

func newReplCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "interactive put/get/rm/verify session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			return runRepl(store)
		},
	}
}

func runRepl(store *gokv.Store) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("gokv> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line.AppendHistory(input)
		if err := runReplCommand(store, input); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func runReplCommand(store *gokv.Store, input string) error {
	fields := splitFields(input)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "put":
		if len(fields) != 3 {
			return errors.New("usage: put <key> <value>")
		}
		tx := store.StartTransaction()
		defer tx.Close()
		if err := tx.Put([]byte(fields[1]), []byte(fields[2])); err != nil {
			return err
		}
		return tx.Commit()
	case "get":
		if len(fields) != 2 {
			return errors.New("usage: get <key>")
		}
		value, err := store.Get([]byte(fields[1]))
		if err != nil {
			return err
		}
		if value == nil {
			fmt.Println("(not found)")
			return nil
		}
		fmt.Println(string(value))
		return nil
	case "rm":
		if len(fields) != 2 {
			return errors.New("usage: rm <key>")
		}
		tx := store.StartTransaction()
		defer tx.Close()
		if err := tx.Remove([]byte(fields[1])); err != nil {
			return err
		}
		return tx.Commit()
	case "verify":
		tx := store.StartTransaction()
		defer tx.Close()
		count, err := tx.Verify()
		if err != nil {
			return err
		}
		fmt.Printf("%d live keys\n", count)
		return tx.Rollback()
	case "dump":
		tx := store.StartTransaction()
		defer tx.Close()
		if err := tx.Dump(func(key, value []byte) error {
			_, err := fmt.Printf("%s\t%s\n", key, value)
			return err
		}); err != nil {
			return err
		}
		return tx.Rollback()
	case "exit", "quit", "q":
		os.Exit(0)
		return nil
	default:
		return fmt.Errorf("unknown command %q (try: put, get, rm, verify, dump, exit)", fields[0])
	}
}

func splitFields(s string) []string {
	var fields []string
	var cur []byte
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' {
			if len(cur) > 0 {
				fields = append(fields, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, s[i])
	}
	if len(cur) > 0 {
		fields = append(fields, string(cur))
	}
	return fields
}
